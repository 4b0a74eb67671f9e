package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/ghostchat/internal/lobby"
	"github.com/roach88/ghostchat/internal/matcher"
	"github.com/roach88/ghostchat/internal/matchstate"
	"github.com/roach88/ghostchat/internal/membership"
	"github.com/roach88/ghostchat/internal/model"
	"github.com/roach88/ghostchat/internal/store"
	"github.com/roach88/ghostchat/internal/testutil"
)

// Harness holds the components a scenario drives.
type Harness struct {
	store    *store.Store
	clock    *testutil.FakeClock
	notifier *testutil.RecordingNotifier
	lobby    *lobby.Lobby
	state    *matchstate.State
	members  *membership.Engine
	matcher  *matcher.Matcher
	users    map[string]UserSpec
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and components
// 2. Seed users, memberships, matches and lobby entries
// 3. Execute steps, recording one trace event each
// 4. Capture notifications and final state
// 5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	start := testutil.Epoch
	if scenario.Now != "" {
		if start, err = time.Parse(time.RFC3339, scenario.Now); err != nil {
			return nil, fmt.Errorf("now: %w", err)
		}
	}

	h := newHarness(st, start, scenario)
	ctx := context.Background()

	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Action, err)
		}
		ev.Step = i + 1
		result.Trace = append(result.Trace, ev)
	}

	for _, n := range h.notifier.All() {
		result.Notifications = append(result.Notifications, Notice{To: n.ChatID, Text: n.Text})
	}
	if result.State, err = h.snapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, start time.Time, scenario *Scenario) *Harness {
	logger := testutil.DiscardLogger()
	clk := testutil.NewFakeClock(start)
	rec := &testutil.RecordingNotifier{}

	var opts []membership.Option
	if scenario.Threshold > 0 {
		opts = append(opts, membership.WithThreshold(scenario.Threshold))
	}
	members := membership.New(st, clk, rec, logger, opts...)
	l := lobby.New(st, clk, logger)

	users := make(map[string]UserSpec, len(scenario.Users))
	for _, u := range scenario.Users {
		users[u.ID] = u
	}

	return &Harness{
		store:    st,
		clock:    clk,
		notifier: rec,
		lobby:    l,
		state:    matchstate.New(st, logger),
		members:  members,
		matcher:  matcher.New(st, l, members, clk, matcher.NewSequenceGenerator("match"), rec, logger),
		users:    users,
		logger:   logger,
	}
}

func (h *Harness) setup(ctx context.Context, scenario *Scenario) error {
	now := h.clock.Now()
	for _, spec := range scenario.Users {
		if err := h.seedUser(ctx, spec, now); err != nil {
			return err
		}
	}
	for i, m := range scenario.Matches {
		err := h.store.InsertMatch(ctx, model.Match{
			ID:        fmt.Sprintf("seed-%d", i+1),
			UserA:     m[0],
			UserB:     m[1],
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
	}
	for _, l := range scenario.Lobby {
		if _, err := h.lobby.Enter(ctx, l.User, h.orgMatch(l.User, l.OrgMatch)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) seedUser(ctx context.Context, spec UserSpec, now time.Time) error {
	// Validated by LoadScenario.
	gender, _ := model.ParseGender(spec.Gender)
	pref, _ := model.ParsePreference(spec.Prefer)
	tier, _ := model.ParseTier(spec.Tier)

	return h.store.Update(ctx, func(tx *store.Tx) error {
		err := tx.PutUser(ctx, model.User{
			ID:               spec.ID,
			DisplayName:      "user " + spec.ID,
			Gender:           gender,
			GenderPreference: pref,
			Email:            spec.Email,
			EmailVerified:    spec.Email != "",
			Tier:             tier,
			OrgMatchOptIn:    spec.OrgMatch,
			CreatedAt:        now,
		})
		if err != nil || spec.VIPFor == "" {
			return err
		}
		d, err := time.ParseDuration(spec.VIPFor)
		if err != nil {
			return err
		}
		return tx.PutMembership(ctx, model.Membership{
			UserID:    spec.ID,
			GrantedAt: now,
			ExpiresAt: now.Add(d),
			Reason:    model.ReasonManual,
		})
	})
}

func (h *Harness) orgMatch(userID string, override *bool) bool {
	if override != nil {
		return *override
	}
	return h.users[userID].OrgMatch
}

func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	ev := TraceEvent{Action: step.Action, User: step.User}

	switch step.Action {
	case StepPass:
		res, err := h.matcher.RunPass(ctx)
		if err != nil {
			return ev, err
		}
		ev.Pairs = res.Pairs
		ev.Detail = fmt.Sprintf("considered=%d remaining=%d failures=%d", res.Considered, res.Remaining, res.Failures)

	case StepEnter:
		_, err := h.lobby.Enter(ctx, step.User, h.orgMatch(step.User, step.OrgMatch))
		switch {
		case errors.Is(err, model.ErrAlreadyMatched):
			ev.Detail = "already matched"
		case err != nil:
			return ev, err
		default:
			ev.Detail = "waiting"
		}

	case StepLeave:
		removed, err := h.lobby.Leave(ctx, step.User)
		if err != nil {
			return ev, err
		}
		ev.Detail = fmt.Sprintf("removed=%t", removed)

	case StepRelease:
		partner, ok, err := h.state.Release(ctx, step.User)
		if err != nil {
			return ev, err
		}
		ev.Detail = "not matched"
		if ok {
			ev.Detail = "partner=" + partner
		}

	case StepAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return ev, err
		}
		ev.Detail = "now=" + h.clock.Advance(d).Format(time.RFC3339)

	case StepSweep:
		n, err := h.members.SweepExpiries(ctx)
		if err != nil {
			return ev, err
		}
		ev.Detail = fmt.Sprintf("downgraded=%d", n)

	case StepGrant:
		m, err := h.members.GrantVIP(ctx, step.User, step.Days, model.ReasonManual)
		if err != nil {
			return ev, err
		}
		ev.Detail = "expires=" + m.ExpiresAt.Format(time.RFC3339)

	default:
		return ev, fmt.Errorf("unknown action %q", step.Action)
	}
	return ev, nil
}

func (h *Harness) snapshot(ctx context.Context) (State, error) {
	st := State{Lobby: []string{}, Matches: [][]string{}, Tiers: map[string]string{}}

	entries, err := h.store.LobbyEntries(ctx)
	if err != nil {
		return st, err
	}
	for _, e := range entries {
		st.Lobby = append(st.Lobby, e.UserID)
	}

	matches, err := h.store.ListMatches(ctx)
	if err != nil {
		return st, err
	}
	for _, m := range matches {
		st.Matches = append(st.Matches, []string{m.UserA, m.UserB})
	}

	users, err := h.store.ListUsers(ctx)
	if err != nil {
		return st, err
	}
	for _, u := range users {
		st.Tiers[u.ID] = string(u.Tier)
	}
	return st, nil
}
