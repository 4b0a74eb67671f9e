package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ghostchat/internal/lobby"
	"github.com/roach88/ghostchat/internal/membership"
	"github.com/roach88/ghostchat/internal/model"
	"github.com/roach88/ghostchat/internal/store"
	"github.com/roach88/ghostchat/internal/testutil"
)

type fixture struct {
	store    *store.Store
	clock    *testutil.FakeClock
	notifier *testutil.RecordingNotifier
	lobby    *lobby.Lobby
	members  *membership.Engine
	matcher  *Matcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    testutil.OpenStore(t),
		clock:    testutil.NewFakeClock(testutil.Epoch),
		notifier: &testutil.RecordingNotifier{},
	}
	log := testutil.DiscardLogger()
	f.lobby = lobby.New(f.store, f.clock, log)
	f.members = membership.New(f.store, f.clock, f.notifier, log)
	f.matcher = New(f.store, f.lobby, f.members, f.clock, NewSequenceGenerator("m"), f.notifier, log)
	return f
}

type userSpec struct {
	id    string
	g     model.Gender
	pref  model.Preference
	vip   bool
	email string
	org   bool
}

// add registers the user and puts them in the lobby, in call order.
func (f *fixture) add(t *testing.T, s userSpec) {
	t.Helper()
	u := testutil.NewUser(s.id, s.g)
	if s.pref != "" {
		u.GenderPreference = s.pref
	}
	if s.email != "" {
		u.Email = s.email
		u.EmailVerified = true
	}
	testutil.PutUser(t, f.store, u)
	if s.vip {
		testutil.GrantVIP(t, f.store, s.id, f.clock.Now().AddDate(0, 0, 30))
	}
	_, err := f.lobby.Enter(context.Background(), s.id, s.org)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
}

func (f *fixture) partner(t *testing.T, id string) string {
	t.Helper()
	mm, err := f.store.GetMatchMember(context.Background(), id)
	if model.IsNotFound(err) {
		return ""
	}
	require.NoError(t, err)
	return mm.PartnerID
}

func (f *fixture) waiting(t *testing.T) []string {
	t.Helper()
	entries, err := f.store.LobbyEntries(context.Background())
	require.NoError(t, err)
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	return ids
}

func TestRunPass_EndToEndScenario(t *testing.T) {
	f := newFixture(t)
	f.add(t, userSpec{id: "u1", g: model.GenderMale, pref: model.PreferAny})
	f.add(t, userSpec{id: "u2", g: model.GenderFemale, pref: model.PreferAny, vip: true})
	f.add(t, userSpec{id: "u3", g: model.GenderMale, pref: model.PreferFemale, vip: true})

	res, err := f.matcher.RunPass(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Pairs, 1)
	assert.Equal(t, Pair{MatchID: "m-1", UserA: "u2", UserB: "u3", Kind: KindVIPVIP}, res.Pairs[0])
	assert.Equal(t, 3, res.Considered)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, []string{"u1"}, f.waiting(t))
	assert.Equal(t, "u3", f.partner(t, "u2"))
	assert.Equal(t, "u2", f.partner(t, "u3"))
}

func TestRunPass_VIPPairsWithVIPFirst(t *testing.T) {
	f := newFixture(t)
	f.add(t, userSpec{id: "free-c", g: model.GenderMale})
	f.add(t, userSpec{id: "free-d", g: model.GenderFemale})
	f.add(t, userSpec{id: "vip-a", g: model.GenderMale, vip: true})
	f.add(t, userSpec{id: "vip-b", g: model.GenderFemale, vip: true})

	res, err := f.matcher.RunPass(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Pairs, 2)
	assert.Equal(t, KindVIPVIP, res.Pairs[0].Kind)
	assert.Equal(t, "vip-b", f.partner(t, "vip-a"))
	assert.Equal(t, KindFreeFree, res.Pairs[1].Kind)
	assert.Equal(t, "free-d", f.partner(t, "free-c"))
	assert.Zero(t, res.Remaining)
	assert.Empty(t, f.waiting(t))
}

func TestRunPass_VIPFallsBackToFree(t *testing.T) {
	f := newFixture(t)
	f.add(t, userSpec{id: "free", g: model.GenderFemale})
	f.add(t, userSpec{id: "vip", g: model.GenderMale, pref: model.PreferFemale, vip: true})

	res, err := f.matcher.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, Pair{MatchID: "m-1", UserA: "vip", UserB: "free", Kind: KindVIPFree}, res.Pairs[0])
}

func TestRunPass_CompatibilityGate(t *testing.T) {
	f := newFixture(t)
	f.add(t, userSpec{id: "a", g: model.GenderMale, pref: model.PreferFemale, vip: true})
	f.add(t, userSpec{id: "b", g: model.GenderMale, vip: true})
	f.add(t, userSpec{id: "c", g: model.GenderMale})

	res, err := f.matcher.RunPass(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "c", f.partner(t, "b"))
	assert.Empty(t, f.partner(t, "a"), "a wants Female and only males are waiting")
	assert.Equal(t, []string{"a"}, f.waiting(t))
}

func TestRunPass_FreeScansForwardOnly(t *testing.T) {
	f := newFixture(t)
	// x only accepts Female; y accepts anyone but x comes first and
	// y would have to look backwards to find z.
	f.add(t, userSpec{id: "x", g: model.GenderMale, pref: model.PreferFemale})
	f.add(t, userSpec{id: "y", g: model.GenderMale})
	f.add(t, userSpec{id: "z", g: model.GenderMale})

	res, err := f.matcher.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "z", f.partner(t, "y"))
	assert.Equal(t, []string{"x"}, f.waiting(t))
}

func TestRunPass_OrgMatching(t *testing.T) {
	f := newFixture(t)
	f.add(t, userSpec{id: "a", g: model.GenderMale, email: "a@acme.edu", org: true})
	f.add(t, userSpec{id: "open", g: model.GenderFemale})
	f.add(t, userSpec{id: "b", g: model.GenderFemale, email: "b@other.edu", org: true})
	f.add(t, userSpec{id: "c", g: model.GenderFemale, email: "c@acme.edu", org: true})

	res, err := f.matcher.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "c", f.partner(t, "a"))
	assert.ElementsMatch(t, []string{"open", "b"}, f.waiting(t))

	texts := f.notifier.Texts("a")
	require.Len(t, texts, 1)
	assert.Equal(t, "🎉 Match found! You're now connected with a female. 🧒"+
		"\n🏛️ You're matched with someone from @acme.edu!"+
		"\n\nStart chatting! Use /next to find a new partner or /disconnect to end chat.", texts[0])
}

func TestRunPass_OrgFallbackWithoutVerifiedEmail(t *testing.T) {
	f := newFixture(t)
	f.add(t, userSpec{id: "a", g: model.GenderMale, org: true})
	f.add(t, userSpec{id: "b", g: model.GenderFemale, email: "b@acme.edu", org: true})

	res, err := f.matcher.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "b", f.partner(t, "a"))

	texts := f.notifier.Texts("b")
	require.Len(t, texts, 1)
	assert.NotContains(t, texts[0], "🏛️")
}

func TestRunPass_ExpiredVIPDowngradedAndTreatedAsFree(t *testing.T) {
	f := newFixture(t)
	f.add(t, userSpec{id: "free1", g: model.GenderMale})
	f.add(t, userSpec{id: "free2", g: model.GenderFemale})
	f.add(t, userSpec{id: "lapsed", g: model.GenderFemale})
	testutil.GrantVIP(t, f.store, "lapsed", f.clock.Now().Add(-time.Minute))

	res, err := f.matcher.RunPass(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Pairs, 1)
	assert.Equal(t, KindFreeFree, res.Pairs[0].Kind)
	assert.Equal(t, "free2", f.partner(t, "free1"), "lapsed VIP does not jump the queue")

	u, err := f.store.GetUser(context.Background(), "lapsed")
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, u.Tier)
	assert.Len(t, f.notifier.Texts("lapsed"), 1, "downgrade notice only")
}

func TestRunPass_MatchNotification(t *testing.T) {
	f := newFixture(t)
	f.add(t, userSpec{id: "a", g: model.GenderMale, vip: true})
	f.add(t, userSpec{id: "b", g: model.GenderFemale})

	_, err := f.matcher.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"🎉 Match found! You're now connected with a female. 🧒" +
		"\n\nStart chatting! Use /next to find a new partner or /disconnect to end chat."}, f.notifier.Texts("a"))
	assert.Equal(t, []string{"🎉 Match found! You're now connected with a male. 👦" +
		"\n✨ Your partner is a VIP member!" +
		"\n\nStart chatting! Use /next to find a new partner or /disconnect to end chat."}, f.notifier.Texts("b"))
}

func TestRunPass_TooFewEntries(t *testing.T) {
	f := newFixture(t)
	f.add(t, userSpec{id: "alone", g: model.GenderMale})

	res, err := f.matcher.RunPass(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Pairs)
	assert.Equal(t, 1, res.Remaining)
	assert.Empty(t, f.notifier.All())
}

// staleSnapshot prepends an entry that is no longer in the lobby table.
type staleSnapshot struct {
	inner Snapshotter
	stale model.LobbyEntry
}

func (s staleSnapshot) Snapshot(ctx context.Context) ([]model.LobbyEntry, error) {
	entries, err := s.inner.Snapshot(ctx)
	return append([]model.LobbyEntry{s.stale}, entries...), err
}

// rawSnapshot reads the lobby table without any repair.
type rawSnapshot struct{ s *store.Store }

func (r rawSnapshot) Snapshot(ctx context.Context) ([]model.LobbyEntry, error) {
	return r.s.LobbyEntries(ctx)
}

func TestRunPass_WriteFailureKeepsScanning(t *testing.T) {
	f := newFixture(t)
	testutil.PutUser(t, f.store, testutil.NewUser("gone", model.GenderMale))
	f.add(t, userSpec{id: "b", g: model.GenderFemale})
	f.add(t, userSpec{id: "c", g: model.GenderMale})

	f.matcher.lobby = staleSnapshot{
		inner: f.lobby,
		stale: model.LobbyEntry{UserID: "gone", Gender: model.GenderMale, GenderPreference: model.PreferAny, Tier: model.TierFree},
	}

	res, err := f.matcher.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Failures, "gone could pair with neither b nor c")
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "c", f.partner(t, "b"))
	assert.Empty(t, f.partner(t, "gone"))
	assert.Empty(t, f.notifier.Texts("gone"))
}

func TestRunPass_FailedPairNotRetried(t *testing.T) {
	f := newFixture(t)
	testutil.PutUser(t, f.store, testutil.NewUser("gone", model.GenderMale))
	testutil.GrantVIP(t, f.store, "gone", f.clock.Now().AddDate(0, 0, 30))
	f.add(t, userSpec{id: "a", g: model.GenderFemale, vip: true})
	f.add(t, userSpec{id: "c", g: model.GenderMale})

	f.matcher.lobby = staleSnapshot{
		inner: f.lobby,
		stale: model.LobbyEntry{UserID: "gone", Gender: model.GenderMale, GenderPreference: model.PreferAny, Tier: model.TierVIP},
	}

	res, err := f.matcher.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Failures, "gone+a and gone+c are each attempted once")
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "c", f.partner(t, "a"))
}

func TestRunPass_HealsHalfPairBeforePairing(t *testing.T) {
	f := newFixture(t)
	f.add(t, userSpec{id: "a", g: model.GenderMale})
	f.add(t, userSpec{id: "b", g: model.GenderFemale})
	testutil.PutUser(t, f.store, testutil.NewUser("x", model.GenderFemale))
	ctx := context.Background()
	// Bypass the lobby to leave a behind a half pair while still waiting.
	require.NoError(t, f.store.InsertMatch(ctx, model.Match{ID: "old", UserA: "a", UserB: "x", CreatedAt: testutil.Epoch}))
	require.NoError(t, f.store.DeleteMatchMember(ctx, "x"))

	// Read the table directly so only the pairing write sees the half pair.
	f.matcher.lobby = rawSnapshot{f.store}

	res, err := f.matcher.RunPass(ctx)
	require.NoError(t, err)

	assert.Zero(t, res.Failures)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "b", f.partner(t, "a"))
}

func TestRunPass_AtMostOneMatchPerUser(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		f.add(t, userSpec{id: id, g: model.GenderMale, vip: id == "c"})
	}

	res, err := f.matcher.RunPass(context.Background())
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, p := range res.Pairs {
		for _, id := range []string{p.UserA, p.UserB} {
			assert.False(t, seen[id], "user %s paired twice", id)
			seen[id] = true
		}
	}
	assert.Len(t, res.Pairs, 2)
	assert.Equal(t, 1, res.Remaining)

	// A second pass over a single waiting user changes nothing.
	res, err = f.matcher.RunPass(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Pairs)
}
