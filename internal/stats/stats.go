// Package stats gathers the service summary shown by the stats command and
// the admin endpoint.
package stats

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/ghostchat/internal/lobby"
	"github.com/roach88/ghostchat/internal/membership"
	"github.com/roach88/ghostchat/internal/store"
)

// Report is a point-in-time summary.
type Report struct {
	Users         store.UserStats  `json:"users"`
	UsersCreated  int64            `json:"users_created"`
	Lobby         lobby.Stats      `json:"lobby"`
	ActiveMatches int              `json:"active_matches"`
	Referrals     membership.Stats `json:"referrals"`
}

// Collect builds a Report.
func Collect(ctx context.Context, s *store.Store, l *lobby.Lobby, m *membership.Engine) (Report, error) {
	var (
		r   Report
		err error
	)
	if r.Users, err = s.UserStats(ctx); err != nil {
		return Report{}, fmt.Errorf("user stats: %w", err)
	}
	if r.UsersCreated, err = s.GetMetaInt(ctx, store.MetaUserTotal); err != nil {
		return Report{}, err
	}
	if r.Lobby, err = l.Stats(ctx); err != nil {
		return Report{}, err
	}
	matches, err := s.ListMatches(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list matches: %w", err)
	}
	r.ActiveMatches = len(matches)
	if r.Referrals, err = m.Stats(ctx); err != nil {
		return Report{}, err
	}
	return r, nil
}

// String renders the report for terminals.
func (r Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Users:          %d (male %d, female %d)\n", r.Users.Total, r.Users.Male, r.Users.Female)
	fmt.Fprintf(&sb, "Membership:     %d VIP, %d Free\n", r.Users.VIP, r.Users.Free)
	fmt.Fprintf(&sb, "Signed up:      %d\n", r.UsersCreated)
	fmt.Fprintf(&sb, "Lobby:          %d waiting (%d VIP, %d Free)\n", r.Lobby.Total, r.Lobby.VIP, r.Lobby.Free)
	fmt.Fprintf(&sb, "Active matches: %d\n", r.ActiveMatches)
	fmt.Fprintf(&sb, "Referrals:      %d from %d referrers, %d earned VIP\n",
		r.Referrals.TotalReferrals, r.Referrals.TotalReferrers, r.Referrals.VIPEarned)
	if len(r.Referrals.Top) > 0 {
		sb.WriteString("Top referrers:\n")
		for i, rc := range r.Referrals.Top {
			name := rc.DisplayName
			if name == "" {
				name = rc.ReferrerID
			}
			fmt.Fprintf(&sb, "  %2d. %s (%d)\n", i+1, name, rc.Count)
		}
	}
	return sb.String()
}
