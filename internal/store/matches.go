package store

import (
	"context"
	"fmt"

	"github.com/roach88/ghostchat/internal/model"
)

// InsertMatch writes the canonical pair row and one member row per
// participant. Fails if either user already holds a member row.
func (c conn) InsertMatch(ctx context.Context, m model.Match) error {
	if m.UserA == m.UserB {
		return fmt.Errorf("insert match %s: user %s cannot match themselves", m.ID, m.UserA)
	}
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO matches (id, user_a, user_b, created_at) VALUES (?, ?, ?, ?)
	`, m.ID, m.UserA, m.UserB, formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert match %s: %w", m.ID, err)
	}

	_, err = c.q.ExecContext(ctx, `
		INSERT INTO match_members (user_id, match_id, partner_id) VALUES (?, ?, ?), (?, ?, ?)
	`, m.UserA, m.ID, m.UserB, m.UserB, m.ID, m.UserA)
	if err != nil {
		return fmt.Errorf("insert match %s members: %w", m.ID, err)
	}
	return nil
}

// MatchMember is one participant's row in the match index.
type MatchMember struct {
	UserID    string
	MatchID   string
	PartnerID string
}

// GetMatchMember returns the index row for userID.
// Returns an error matching model.ErrNotFound if the user is unmatched.
func (c conn) GetMatchMember(ctx context.Context, userID string) (MatchMember, error) {
	var mm MatchMember
	err := c.q.QueryRowContext(ctx,
		`SELECT user_id, match_id, partner_id FROM match_members WHERE user_id = ?`, userID,
	).Scan(&mm.UserID, &mm.MatchID, &mm.PartnerID)
	if err != nil {
		return MatchMember{}, notFound(err, "get match member", model.NotFound("match", userID))
	}
	return mm, nil
}

// IsMatched reports whether userID holds a member row.
func (c conn) IsMatched(ctx context.Context, userID string) (bool, error) {
	var n int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM match_members WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is matched: %w", err)
	}
	return n > 0, nil
}

// LiveMatch returns the member row of userID when it is backed by a
// complete pair. Returns an error matching model.ErrNotFound if the user is
// unmatched.
//
// A half pair is deleted before returning, and the returned error matches
// model.ErrCorruptState. The caller should log it, treat the user as
// unmatched and still commit so the repair sticks.
func (c conn) LiveMatch(ctx context.Context, userID string) (MatchMember, error) {
	mm, err := c.GetMatchMember(ctx, userID)
	if err != nil {
		return MatchMember{}, err
	}
	broken, err := c.checkPair(ctx, mm)
	if err != nil {
		return MatchMember{}, err
	}
	if broken == nil {
		return mm, nil
	}
	if err := c.healPair(ctx, mm); err != nil {
		return MatchMember{}, err
	}
	return MatchMember{}, broken
}

// checkPair returns a CORRUPT_STATE error as broken when the member row is
// not backed by a complete pair. err carries read failures only.
func (c conn) checkPair(ctx context.Context, mm MatchMember) (broken, err error) {
	match, err := c.GetMatch(ctx, mm.MatchID)
	if model.IsNotFound(err) {
		return model.Corrupt(mm.UserID, "match %s has no pair row", mm.MatchID), nil
	}
	if err != nil {
		return nil, err
	}
	if match.PartnerOf(mm.UserID) != mm.PartnerID {
		return model.Corrupt(mm.UserID, "match %s does not pair with %s", mm.MatchID, mm.PartnerID), nil
	}

	other, err := c.GetMatchMember(ctx, mm.PartnerID)
	if model.IsNotFound(err) {
		return model.Corrupt(mm.UserID, "partner %s has no member row", mm.PartnerID), nil
	}
	if err != nil {
		return nil, err
	}
	if other.MatchID != mm.MatchID || other.PartnerID != mm.UserID {
		return model.Corrupt(mm.UserID, "partner %s points at %s", mm.PartnerID, other.PartnerID), nil
	}
	return nil, nil
}

// healPair removes every row of the broken pair that still mentions the
// user. The partner's own member row is left alone when it belongs to a
// different, intact match.
func (c conn) healPair(ctx context.Context, mm MatchMember) error {
	if err := c.DeleteMatchMember(ctx, mm.UserID); err != nil {
		return err
	}
	other, err := c.GetMatchMember(ctx, mm.PartnerID)
	switch {
	case model.IsNotFound(err):
	case err != nil:
		return err
	case other.MatchID == mm.MatchID:
		if err := c.DeleteMatchMember(ctx, other.UserID); err != nil {
			return err
		}
	}
	return c.DeleteMatch(ctx, mm.MatchID)
}

// GetMatch returns the pair row with the given id.
func (c conn) GetMatch(ctx context.Context, id string) (model.Match, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT id, user_a, user_b, created_at FROM matches WHERE id = ?`, id)
	m, err := scanMatch(row)
	if err != nil {
		return model.Match{}, notFound(err, "get match", &model.Error{
			Code: model.ErrCodeNotFound, Message: "match " + id + " not found",
		})
	}
	return m, nil
}

// CountMatchMembers returns how many member rows point at the match.
// A complete pair has exactly two.
func (c conn) CountMatchMembers(ctx context.Context, matchID string) (int, error) {
	var n int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM match_members WHERE match_id = ?`, matchID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count match members: %w", err)
	}
	return n, nil
}

// DeleteMatch removes the pair row; member rows go with it via cascade.
func (c conn) DeleteMatch(ctx context.Context, id string) error {
	if _, err := c.q.ExecContext(ctx, `DELETE FROM matches WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete match %s: %w", id, err)
	}
	return nil
}

// DeleteMatchMember removes a single index row. Used when healing a half
// pair whose canonical row is already gone.
func (c conn) DeleteMatchMember(ctx context.Context, userID string) error {
	if _, err := c.q.ExecContext(ctx, `DELETE FROM match_members WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete match member %s: %w", userID, err)
	}
	return nil
}

// ListMatches returns every pair row ordered by creation time.
func (c conn) ListMatches(ctx context.Context) ([]model.Match, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT id, user_a, user_b, created_at FROM matches ORDER BY created_at ASC, id ASC COLLATE BINARY`)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("list matches: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return matches, nil
}

func scanMatch(s scanner) (model.Match, error) {
	var (
		m       model.Match
		created string
	)
	if err := s.Scan(&m.ID, &m.UserA, &m.UserB, &created); err != nil {
		return model.Match{}, err
	}
	var err error
	if m.CreatedAt, err = parseTime(created); err != nil {
		return model.Match{}, err
	}
	return m, nil
}
