// Package matcher pairs waiting users.
//
// A pass reads a lobby snapshot, orders it by priority (VIPs with a live
// membership first, snapshot order otherwise) and greedily pairs compatible
// users. Each pair is written in one store transaction that also removes
// both users from the lobby, so a user is never both waiting and matched.
// Notifications go out after the write and are not awaited.
//
// The pairing is greedy and priority-ordered, not globally optimal: a VIP
// may claim a partner that would have completed another pair.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/roach88/ghostchat/internal/clock"
	"github.com/roach88/ghostchat/internal/metrics"
	"github.com/roach88/ghostchat/internal/model"
	"github.com/roach88/ghostchat/internal/notify"
	"github.com/roach88/ghostchat/internal/store"
)

const (
	// PriorityVIP is the priority of a VIP with a live membership.
	PriorityVIP = 10
	// PriorityFree is the priority of everyone else.
	PriorityFree = 1
)

// Pair kinds reported in PassResult and metrics.
const (
	KindVIPVIP   = "vip_vip"
	KindVIPFree  = "vip_free"
	KindFreeFree = "free_free"
)

// Snapshotter supplies the waiting entries in insertion order.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]model.LobbyEntry, error)
}

// Memberships resolves VIP validity and downgrades expired VIPs.
type Memberships interface {
	IsExpired(ctx context.Context, userID string) (bool, error)
	Downgrade(ctx context.Context, userID, source string) (bool, error)
}

// Pair is one match created by a pass.
type Pair struct {
	MatchID string `json:"match_id" yaml:"match_id"`
	UserA   string `json:"user_a" yaml:"user_a"`
	UserB   string `json:"user_b" yaml:"user_b"`
	Kind    string `json:"kind" yaml:"kind"`
}

// PassResult summarizes one pass.
type PassResult struct {
	Pairs      []Pair `json:"pairs"`
	Considered int    `json:"considered"`
	Remaining  int    `json:"remaining"`
	Failures   int    `json:"failures"`
}

// Matcher runs match passes. Passes must not run concurrently; the
// scheduler loop is the only caller in production.
type Matcher struct {
	store    *store.Store
	lobby    Snapshotter
	members  Memberships
	clock    clock.Clock
	ids      IDGenerator
	notifier notify.Notifier
	logger   *slog.Logger
}

// New creates a Matcher.
func New(
	s *store.Store,
	lobby Snapshotter,
	members Memberships,
	c clock.Clock,
	ids IDGenerator,
	n notify.Notifier,
	logger *slog.Logger,
) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		store:    s,
		lobby:    lobby,
		members:  members,
		clock:    c,
		ids:      ids,
		notifier: n,
		logger:   logger.With("component", "matcher"),
	}
}

// candidate is a lobby entry joined with what the pass knows about its user.
// profile carries the entry's gender, preference and org flag with the
// record's email, so compatibility sees the enqueue-time choices.
type candidate struct {
	entry    model.LobbyEntry
	profile  model.User
	priority int
}

func (c candidate) vip() bool { return c.priority == PriorityVIP }

// RunPass runs one matching pass. Only a failure to read the lobby is
// returned; per-pair write failures are logged and counted in Failures.
func (m *Matcher) RunPass(ctx context.Context) (PassResult, error) {
	start := time.Now()

	entries, err := m.lobby.Snapshot(ctx)
	if err != nil {
		metrics.RecordMatchPass(0, time.Since(start).Seconds(), false)
		return PassResult{}, fmt.Errorf("match pass: %w", err)
	}

	res := PassResult{Considered: len(entries), Remaining: len(entries)}
	if len(entries) < 2 {
		metrics.RecordMatchPass(len(entries), time.Since(start).Seconds(), true)
		return res, nil
	}

	cands := make([]candidate, 0, len(entries))
	for _, e := range entries {
		cands = append(cands, m.resolve(ctx, e))
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].priority > cands[j].priority
	})

	claimed := make(map[string]bool, len(cands))
	failed := make(map[[2]string]bool)
	for i, c := range cands {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if claimed[c.entry.UserID] {
			continue
		}

		var pair Pair
		var ok bool
		if c.vip() {
			pair, ok = m.scan(ctx, cands, claimed, failed, i, 0, true, &res)
			if !ok {
				pair, ok = m.scan(ctx, cands, claimed, failed, i, 0, false, &res)
			}
		} else {
			pair, ok = m.scan(ctx, cands, claimed, failed, i, i+1, false, &res)
		}
		if ok {
			res.Pairs = append(res.Pairs, pair)
			res.Remaining -= 2
		}
	}

	metrics.RecordMatchPass(len(entries), time.Since(start).Seconds(), true)
	if len(res.Pairs) > 0 || res.Failures > 0 {
		m.logger.Info("match pass done",
			"considered", res.Considered,
			"pairs", len(res.Pairs),
			"remaining", res.Remaining,
			"failures", res.Failures,
		)
	}
	return res, nil
}

// scan looks for a partner for cands[i] starting at from. With vipOnly set
// only VIP partners qualify. The first compatible partner whose pairing
// write succeeds is claimed together with cands[i]. A pair whose write
// failed is recorded in failed and not attempted again in the same pass.
func (m *Matcher) scan(ctx context.Context, cands []candidate, claimed map[string]bool, failed map[[2]string]bool, i, from int, vipOnly bool, res *PassResult) (Pair, bool) {
	a := cands[i]
	for j := from; j < len(cands); j++ {
		b := cands[j]
		if j == i || claimed[b.entry.UserID] {
			continue
		}
		if vipOnly && !b.vip() {
			continue
		}
		key := pairKey(a.entry.UserID, b.entry.UserID)
		if failed[key] || !Compatible(a.profile, b.profile) {
			continue
		}

		pair, err := m.pair(ctx, a, b)
		if err != nil {
			failed[key] = true
			res.Failures++
			metrics.RecordPairFailure()
			m.logger.Error("pairing failed, both stay in lobby",
				"user_a", a.entry.UserID,
				"user_b", b.entry.UserID,
				"error", err,
			)
			continue
		}
		claimed[a.entry.UserID] = true
		claimed[b.entry.UserID] = true
		return pair, true
	}
	return Pair{}, false
}

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// resolve loads the user record and computes the entry's priority. A VIP
// whose membership has lapsed is downgraded here.
func (m *Matcher) resolve(ctx context.Context, e model.LobbyEntry) candidate {
	c := candidate{
		entry: e,
		profile: model.User{
			ID:               e.UserID,
			Gender:           e.Gender,
			GenderPreference: e.GenderPreference,
			Tier:             model.TierFree,
			OrgMatchOptIn:    e.OrgMatchOptIn,
		},
		priority: PriorityFree,
	}

	u, err := m.store.GetUser(ctx, e.UserID)
	if err != nil {
		m.logger.Warn("user record unreadable, using free priority", "user", e.UserID, "error", err)
		return c
	}
	c.profile.DisplayName = u.DisplayName
	c.profile.Email = u.Email
	c.profile.EmailVerified = u.EmailVerified

	if u.Tier != model.TierVIP {
		return c
	}
	expired, err := m.members.IsExpired(ctx, e.UserID)
	if err != nil {
		m.logger.Warn("membership unreadable, using free priority", "user", e.UserID, "error", err)
		return c
	}
	if expired {
		if _, err := m.members.Downgrade(ctx, e.UserID, "lookup"); err != nil {
			m.logger.Error("downgrade of expired vip failed", "user", e.UserID, "error", err)
		}
		return c
	}
	c.priority = PriorityVIP
	c.profile.Tier = model.TierVIP
	return c
}

// pair writes the match and removes both users from the lobby in one
// transaction, then notifies both sides.
func (m *Matcher) pair(ctx context.Context, a, b candidate) (Pair, error) {
	match := model.Match{
		ID:        m.ids.Generate(),
		UserA:     a.entry.UserID,
		UserB:     b.entry.UserID,
		CreatedAt: m.clock.Now(),
	}

	err := m.store.Update(ctx, func(tx *store.Tx) error {
		for _, id := range []string{match.UserA, match.UserB} {
			_, err := tx.LiveMatch(ctx, id)
			switch {
			case model.IsNotFound(err):
			case model.IsCorrupt(err):
				m.logger.Error("half pair removed", "user", id, "error", err)
			case err != nil:
				return err
			default:
				return model.AlreadyMatched(id)
			}
			removed, err := tx.DeleteLobbyEntry(ctx, id)
			if err != nil {
				return err
			}
			if !removed {
				return model.NotFound("lobby entry", id)
			}
		}
		return tx.InsertMatch(ctx, match)
	})
	if err != nil {
		return Pair{}, fmt.Errorf("pair %s with %s: %w", match.UserA, match.UserB, err)
	}

	kind := pairKind(a, b)
	metrics.RecordPair(kind)
	m.logger.Info("users matched",
		"match", match.ID,
		"user_a", match.UserA,
		"user_b", match.UserB,
		"kind", kind,
	)

	domain := sharedDomain(a.profile, b.profile)
	m.notifier.Notify(notify.Text(a.entry.UserID, matchMessage(b.profile, domain)))
	m.notifier.Notify(notify.Text(b.entry.UserID, matchMessage(a.profile, domain)))

	return Pair{MatchID: match.ID, UserA: match.UserA, UserB: match.UserB, Kind: kind}, nil
}

func pairKind(a, b candidate) string {
	switch {
	case a.vip() && b.vip():
		return KindVIPVIP
	case a.vip() || b.vip():
		return KindVIPFree
	default:
		return KindFreeFree
	}
}

// matchMessage is the text sent to a user about their new partner.
func matchMessage(partner model.User, domain string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎉 Match found! You're now connected with a %s. %s",
		strings.ToLower(string(partner.Gender)), partner.Gender.Emoji())
	if partner.Tier == model.TierVIP {
		b.WriteString("\n✨ Your partner is a VIP member!")
	}
	if domain != "" {
		fmt.Fprintf(&b, "\n🏛️ You're matched with someone from @%s!", domain)
	}
	b.WriteString("\n\nStart chatting! Use /next to find a new partner or /disconnect to end chat.")
	return b.String()
}
