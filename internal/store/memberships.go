package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/ghostchat/internal/model"
)

// GetMembership returns the live membership of userID.
// Returns an error matching model.ErrNotFound if there is none.
func (c conn) GetMembership(ctx context.Context, userID string) (model.Membership, error) {
	row := c.q.QueryRowContext(ctx, `
		SELECT user_id, granted_at, expires_at, reason FROM memberships WHERE user_id = ?
	`, userID)
	m, err := scanMembership(row)
	if err != nil {
		return model.Membership{}, notFound(err, "get membership", model.NotFound("membership", userID))
	}
	return m, nil
}

// PutMembership inserts or overwrites the membership of m.UserID.
func (c conn) PutMembership(ctx context.Context, m model.Membership) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO memberships (user_id, granted_at, expires_at, reason)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			granted_at = excluded.granted_at,
			expires_at = excluded.expires_at,
			reason = excluded.reason
	`, m.UserID, formatTime(m.GrantedAt), formatTime(m.ExpiresAt), m.Reason)
	if err != nil {
		return fmt.Errorf("put membership %s: %w", m.UserID, err)
	}
	return nil
}

// DeleteMembership removes the membership of userID.
// Returns true if a row was removed.
func (c conn) DeleteMembership(ctx context.Context, userID string) (bool, error) {
	res, err := c.q.ExecContext(ctx, `DELETE FROM memberships WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("delete membership %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete membership %s: %w", userID, err)
	}
	return n > 0, nil
}

// ExpiredMemberships returns ids of memberships with expires_at < now,
// oldest expiry first.
func (c conn) ExpiredMemberships(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT user_id FROM memberships
		WHERE expires_at < ?
		ORDER BY expires_at ASC, user_id ASC COLLATE BINARY
	`, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("expired memberships: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("expired memberships: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("expired memberships: %w", err)
	}
	return ids, nil
}

// ListMemberships returns every live membership ordered by user id.
func (c conn) ListMemberships(ctx context.Context) ([]model.Membership, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT user_id, granted_at, expires_at, reason FROM memberships
		ORDER BY user_id ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var ms []model.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("list memberships: %w", err)
		}
		ms = append(ms, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return ms, nil
}

func scanMembership(s scanner) (model.Membership, error) {
	var (
		m                model.Membership
		granted, expires string
	)
	if err := s.Scan(&m.UserID, &granted, &expires, &m.Reason); err != nil {
		return model.Membership{}, err
	}
	var err error
	if m.GrantedAt, err = parseTime(granted); err != nil {
		return model.Membership{}, err
	}
	if m.ExpiresAt, err = parseTime(expires); err != nil {
		return model.Membership{}, err
	}
	return m, nil
}
