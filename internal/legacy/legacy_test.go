package legacy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ghostchat/internal/matcher"
	"github.com/roach88/ghostchat/internal/model"
	"github.com/roach88/ghostchat/internal/store"
	"github.com/roach88/ghostchat/internal/testutil"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

const usersJSON = `{
    "300": {"first_name": "Zoe", "last_name": "", "username": "z", "gender": "Female", "prefer": "Male", "type": "Free", "created_at": "2024-05-01 10:00:00"},
    "100": {"first_name": "Al", "last_name": "B", "username": "al", "gender": "Male", "type": "VIP", "created_at": "2024-05-02 11:30:00"},
    "200": {"first_name": "Cy", "last_name": "D", "username": "cy", "gender": "Female", "prefer": "Any", "type": "Free", "email": "cy@acme.org"},
    "400": {"first_name": "Ed", "last_name": "", "username": "ed", "gender": "Robot"},
    "500": {"first_name": "Fi", "last_name": "", "username": "fi", "gender": "Male"}
}`

func TestImport(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenStore(t)
	now := testutil.Epoch

	dir := writeFiles(t, map[string]string{
		UsersFile: usersJSON,
		LobbyFile: `{
			"300": {"gender": "Female", "prefer": "Male", "type": "Free", "match_org": false},
			"500": {"gender": "Male", "prefer": "Any", "type": "Free", "match_org": true},
			"100": {"gender": "Male", "prefer": "Any", "type": "VIP", "match_org": false},
			"999": {"gender": "Male", "prefer": "Any", "type": "Free", "match_org": false}
		}`,
		MatchesFile: `{"100": "200", "200": "100", "300": "777", "500": "500"}`,
		ReferralsFile: `{
			"100": {"referrals": ["200", "300"], "total_referrals": 2, "vip_earned": false, "last_referral": "2024-05-03 09:00:00"},
			"200": {"referrals": [], "total_referrals": 0, "vip_earned": false, "last_referral": null}
		}`,
		MembershipsFile: `{
			"100": {"type": "VIP", "granted_date": "2024-05-02 12:00:00", "expiry_date": "2024-06-01 12:00:00", "days": 30, "reason": "referral_reward"},
			"888": {"type": "VIP", "granted_date": "2024-05-02 12:00:00", "expiry_date": "2024-06-01 12:00:00", "days": 30, "reason": "referral_reward"}
		}`,
		RootFile: `{"offset": 4242, "Total Users": 7, "Bot Started": "2024-04-30 08:00:00", "Version": "1.0"}`,
	})

	res, err := Import(ctx, s, dir, matcher.NewSequenceGenerator("m"), now)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Users)
	assert.Equal(t, 1, res.Matches)
	assert.Equal(t, 2, res.LobbyEntries)
	assert.Equal(t, 2, res.Referrals)
	assert.Equal(t, 1, res.Memberships)
	assert.ElementsMatch(t, []string{
		`user 400: invalid gender "Robot"`,
		"match 300-777: half pair",
		"match 500: paired with itself",
		"lobby 100: already matched",
		"lobby 999: unknown user",
		"membership 888: unknown user",
	}, res.Skipped)

	al, err := s.GetUser(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, "Al B", al.DisplayName)
	assert.Equal(t, model.TierVIP, al.Tier)
	assert.Equal(t, model.PreferAny, al.GenderPreference)
	assert.Equal(t, time.Date(2024, 5, 2, 11, 30, 0, 0, time.UTC), al.CreatedAt)

	cy, err := s.GetUser(ctx, "200")
	require.NoError(t, err)
	assert.Equal(t, "cy@acme.org", cy.TrustedEmail())

	mm, err := s.GetMatchMember(ctx, "200")
	require.NoError(t, err)
	assert.Equal(t, "100", mm.PartnerID)

	entries, err := s.LobbyEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "300", entries[0].UserID, "file order is queue order")
	assert.Equal(t, "500", entries[1].UserID)
	assert.True(t, entries[1].OrgMatchOptIn)

	ref, ok, err := s.GetReferral(ctx, "100")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"200", "300"}, ref.Referred)
	assert.Equal(t, 2, ref.TotalCount)

	m, err := s.GetMembership(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), m.ExpiresAt)
	assert.Equal(t, model.ReasonReferralReward, m.Reason)

	offset, err := s.GetMetaInt(ctx, store.MetaUpdateOffset)
	require.NoError(t, err)
	assert.Equal(t, int64(4242), offset)
	total, err := s.GetMetaInt(ctx, store.MetaUserTotal)
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
}

func TestImport_EmptyDir(t *testing.T) {
	s := testutil.OpenStore(t)
	res, err := Import(context.Background(), s, t.TempDir(), matcher.NewSequenceGenerator("m"), testutil.Epoch)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestImport_MalformedFile(t *testing.T) {
	s := testutil.OpenStore(t)
	dir := writeFiles(t, map[string]string{UsersFile: `["not", "an", "object"]`})
	_, err := Import(context.Background(), s, dir, matcher.NewSequenceGenerator("m"), testutil.Epoch)
	assert.ErrorContains(t, err, "expected a JSON object")
}

func TestImport_RollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenStore(t)
	testutil.PutUser(t, s, testutil.NewUser("100", model.GenderMale))
	testutil.PutUser(t, s, testutil.NewUser("200", model.GenderFemale))
	testutil.PutUser(t, s, testutil.NewUser("300", model.GenderFemale))
	require.NoError(t, s.InsertMatch(ctx, model.Match{ID: "existing", UserA: "100", UserB: "300", CreatedAt: testutil.Epoch}))

	dir := writeFiles(t, map[string]string{
		UsersFile:   usersJSON,
		MatchesFile: `{"100": "200", "200": "100"}`,
	})
	_, err := Import(ctx, s, dir, matcher.NewSequenceGenerator("m"), testutil.Epoch)
	require.Error(t, err)

	u, err := s.GetUser(ctx, "100")
	require.NoError(t, err)
	assert.NotEqual(t, "Al B", u.DisplayName, "user rewrite rolled back")
}
