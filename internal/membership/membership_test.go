package membership

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ghostchat/internal/model"
	"github.com/roach88/ghostchat/internal/store"
	"github.com/roach88/ghostchat/internal/testutil"
)

type fixture struct {
	store    *store.Store
	clock    *testutil.FakeClock
	notifier *testutil.RecordingNotifier
	engine   *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    testutil.OpenStore(t),
		clock:    testutil.NewFakeClock(testutil.Epoch),
		notifier: &testutil.RecordingNotifier{},
	}
	f.engine = New(f.store, f.clock, f.notifier, testutil.DiscardLogger(), opts...)
	return f
}

func (f *fixture) user(t *testing.T, id string) {
	t.Helper()
	testutil.PutUser(t, f.store, testutil.NewUser(id, model.GenderMale))
}

func (f *fixture) refer(t *testing.T, referrer string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ok, err := f.engine.RecordReferral(context.Background(), referrer, fmt.Sprintf("%s-ref-%d", referrer, i))
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestRecordReferral_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice")
	ctx := context.Background()

	ok, err := f.engine.RecordReferral(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.engine.RecordReferral(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, ok, "second record of the same pair is not an error")

	ref, err := f.engine.Referral(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, ref.TotalCount)
	assert.Equal(t, []string{"bob"}, ref.Referred)
	assert.Equal(t, testutil.Epoch, ref.LastReferralAt)

	assert.Equal(t, []string{"🎉 Great news! Someone joined using your referral link.\nYour total referrals: 1"},
		f.notifier.Texts("alice"), "duplicate does not notify")
}

func TestRecordReferral_GrantsExactlyAtThreshold(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice")
	ctx := context.Background()

	f.refer(t, "alice", 4)
	u, err := f.store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, u.Tier)

	ok, err := f.engine.RecordReferral(ctx, "alice", "fifth")
	require.NoError(t, err)
	require.True(t, ok)

	u, err = f.store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TierVIP, u.Tier)

	m, err := f.store.GetMembership(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, testutil.Epoch.AddDate(0, 0, 30), m.ExpiresAt)
	assert.Equal(t, model.ReasonReferralReward, m.Reason)

	ref, err := f.engine.Referral(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ref.VIPEarned)

	texts := f.notifier.Texts("alice")
	require.Len(t, texts, 6)
	assert.Equal(t, "🎉 Congratulations! You've earned VIP membership for 30 days by referring 5 users!\n\n"+
		"✨ VIP Benefits:\n• Higher match priority\n• Faster connections\n• Premium features\n\n"+
		"Your VIP membership expires on: 2026-03-31", texts[5])

	// The sixth referral grants nothing new.
	f.clock.Advance(24 * time.Hour)
	ok, err = f.engine.RecordReferral(ctx, "alice", "sixth")
	require.NoError(t, err)
	require.True(t, ok)

	m2, err := f.store.GetMembership(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, m.ExpiresAt, m2.ExpiresAt)
	assert.Len(t, f.notifier.Texts("alice"), 7)
}

func TestRecordReferral_NoRegrantAfterExpiry(t *testing.T) {
	f := newFixture(t, WithThreshold(2), WithVIPDays(1))
	f.user(t, "alice")
	ctx := context.Background()

	f.refer(t, "alice", 2)
	f.clock.Advance(48 * time.Hour)
	n, err := f.engine.SweepExpiries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := f.engine.RecordReferral(ctx, "alice", "late")
	require.NoError(t, err)
	require.True(t, ok)

	expired, err := f.engine.IsExpired(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, expired, "vipEarned never resets")
}

func TestRecordReferral_UnregisteredReferrerKeepsCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.refer(t, "ghost", 5)

	n, err := f.engine.ReferralCount(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, 5, n, "the threshold referral is kept when the reward cannot be granted")

	ref, err := f.engine.Referral(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ref.VIPEarned)

	_, err = f.store.GetMembership(ctx, "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestGrantVIP_OverwritesExpiry(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice")
	ctx := context.Background()

	_, err := f.engine.GrantVIP(ctx, "alice", 30, model.ReasonManual)
	require.NoError(t, err)

	f.clock.Advance(10 * 24 * time.Hour)
	m, err := f.engine.GrantVIP(ctx, "alice", 5, model.ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 5), m.ExpiresAt, "re-grant does not stack")

	stored, err := f.store.GetMembership(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, m, stored)
}

func TestGrantVIP_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.GrantVIP(context.Background(), "ghost", 30, model.ReasonManual)
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))

	_, err = f.store.GetMembership(context.Background(), "ghost")
	assert.True(t, model.IsNotFound(err), "grant rolled back")
}

func TestIsExpired(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice")
	ctx := context.Background()

	expired, err := f.engine.IsExpired(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, expired, "no membership")

	m, err := f.engine.GrantVIP(ctx, "alice", 1, model.ReasonManual)
	require.NoError(t, err)

	f.clock.Set(m.ExpiresAt)
	expired, err = f.engine.IsExpired(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, expired, "the expiry instant is still live")

	f.clock.Advance(time.Nanosecond)
	expired, err = f.engine.IsExpired(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestDowngrade_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice")
	ctx := context.Background()

	_, err := f.engine.GrantVIP(ctx, "alice", 30, model.ReasonManual)
	require.NoError(t, err)
	f.notifier.Reset()

	changed, err := f.engine.Downgrade(ctx, "alice", "manual")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.engine.Downgrade(ctx, "alice", "manual")
	require.NoError(t, err)
	assert.False(t, changed)

	u, err := f.store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, u.Tier)
	assert.Equal(t, []string{"Your VIP membership has expired. You've been downgraded to Free status.\n\n" +
		"To regain VIP membership, refer 5 more users to the bot!"}, f.notifier.Texts("alice"))
}

func TestDowngrade_TierWithoutMembership(t *testing.T) {
	f := newFixture(t)
	u := testutil.NewUser("alice", model.GenderFemale)
	u.Tier = model.TierVIP
	testutil.PutUser(t, f.store, u)

	changed, err := f.engine.Downgrade(context.Background(), "alice", "lookup")
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := f.store.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, got.Tier)
}

func TestSweepExpiries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		f.user(t, id)
	}
	testutil.GrantVIP(t, f.store, "a", testutil.Epoch.Add(-time.Hour))
	testutil.GrantVIP(t, f.store, "b", testutil.Epoch.Add(-time.Minute))
	testutil.GrantVIP(t, f.store, "c", testutil.Epoch.Add(time.Hour))

	n, err := f.engine.SweepExpiries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.engine.SweepExpiries(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "repeated sweep is a no-op")

	for id, want := range map[string]model.Tier{"a": model.TierFree, "b": model.TierFree, "c": model.TierVIP} {
		u, err := f.store.GetUser(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, u.Tier, id)
	}
	assert.Len(t, f.notifier.Texts("a"), 1)
	assert.Empty(t, f.notifier.Texts("c"))
}

func TestStatsAndLink(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice")
	f.user(t, "bob")
	f.refer(t, "alice", 3)
	f.refer(t, "bob", 1)

	st, err := f.engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalReferrers)
	assert.Equal(t, 4, st.TotalReferrals)
	assert.Zero(t, st.VIPEarned)
	require.Len(t, st.Top, 2)
	assert.Equal(t, "alice", st.Top[0].ReferrerID)
	assert.Equal(t, 3, st.Top[0].Count)

	n, err := f.engine.ReferralCount(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, "https://t.me/GhostChatBot?start=alice", ReferralLink("GhostChatBot", "alice"))
}
