package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/ghostchat/internal/model"
)

const userColumns = `id, display_name, gender, gender_preference, email, email_verified,
	tier, org_match_opt_in, created_at, updated_at`

// GetUser returns the user with the given id.
// Returns an error matching model.ErrNotFound if the user does not exist.
func (c conn) GetUser(ctx context.Context, id string) (model.User, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, notFound(err, "get user", model.NotFound("user", id))
	}
	return u, nil
}

// UserExists reports whether a user record exists.
func (c conn) UserExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return n > 0, nil
}

// PutUser inserts or replaces a user record. CreatedAt is kept from the
// existing record on update.
func (c conn) PutUser(ctx context.Context, u model.User) error {
	if u.GenderPreference == "" {
		u.GenderPreference = model.PreferAny
	}
	if u.Tier == "" {
		u.Tier = model.TierFree
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			gender = excluded.gender,
			gender_preference = excluded.gender_preference,
			email = excluded.email,
			email_verified = excluded.email_verified,
			tier = excluded.tier,
			org_match_opt_in = excluded.org_match_opt_in,
			updated_at = excluded.updated_at
	`,
		u.ID,
		u.DisplayName,
		string(u.Gender),
		string(u.GenderPreference),
		u.Email,
		boolToInt(u.EmailVerified),
		string(u.Tier),
		boolToInt(u.OrgMatchOptIn),
		formatTime(u.CreatedAt),
		formatTime(u.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put user %s: %w", u.ID, err)
	}
	return nil
}

// SetTier updates a user's membership tier.
func (c conn) SetTier(ctx context.Context, id string, tier model.Tier, now time.Time) error {
	return c.updateUserField(ctx, id, "tier", string(tier), now)
}

// SetGenderPreference updates a user's gender preference.
func (c conn) SetGenderPreference(ctx context.Context, id string, pref model.Preference, now time.Time) error {
	return c.updateUserField(ctx, id, "gender_preference", string(pref), now)
}

// SetOrgMatchOptIn updates a user's organization matching flag.
func (c conn) SetOrgMatchOptIn(ctx context.Context, id string, optIn bool, now time.Time) error {
	return c.updateUserField(ctx, id, "org_match_opt_in", boolToInt(optIn), now)
}

// updateUserField sets one column. column is never user input.
func (c conn) updateUserField(ctx context.Context, id, column string, value any, now time.Time) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE users SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, formatTime(now), id,
	)
	if err != nil {
		return fmt.Errorf("update user %s %s: %w", id, column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user %s %s: %w", id, column, err)
	}
	if n == 0 {
		return model.NotFound("user", id)
	}
	return nil
}

// ListUsers returns all users ordered by creation time, then id.
func (c conn) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC COLLATE BINARY`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UserStats counts registered users.
type UserStats struct {
	Total  int `json:"total"`
	Male   int `json:"male"`
	Female int `json:"female"`
	VIP    int `json:"vip"`
	Free   int `json:"free"`
}

// UserStats aggregates users by gender and tier.
func (c conn) UserStats(ctx context.Context) (UserStats, error) {
	var st UserStats
	err := c.q.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(gender = 'Male'), 0),
			COALESCE(SUM(gender = 'Female'), 0),
			COALESCE(SUM(tier = 'VIP'), 0),
			COALESCE(SUM(tier = 'Free'), 0)
		FROM users
	`).Scan(&st.Total, &st.Male, &st.Female, &st.VIP, &st.Free)
	if err != nil {
		return UserStats{}, fmt.Errorf("user stats: %w", err)
	}
	return st, nil
}

func scanUser(s scanner) (model.User, error) {
	var (
		u                  model.User
		gender, pref, tier string
		verified, org      int
		created, updated   string
	)
	if err := s.Scan(&u.ID, &u.DisplayName, &gender, &pref, &u.Email, &verified,
		&tier, &org, &created, &updated); err != nil {
		return model.User{}, err
	}
	u.Gender = model.Gender(gender)
	u.GenderPreference = model.Preference(pref)
	u.Tier = model.Tier(tier)
	u.EmailVerified = verified != 0
	u.OrgMatchOptIn = org != 0

	var err error
	if u.CreatedAt, err = parseTime(created); err != nil {
		return model.User{}, err
	}
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return model.User{}, err
	}
	return u, nil
}
