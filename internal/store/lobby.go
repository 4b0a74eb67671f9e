package store

import (
	"context"
	"fmt"

	"github.com/roach88/ghostchat/internal/model"
)

const lobbyColumns = `seq, user_id, gender, gender_preference, tier, org_match_opt_in, entered_at`

// UpsertLobbyEntry inserts an entry or refreshes the existing one for the
// same user. A refreshed entry keeps its seq, so the user keeps their place
// in the queue. Returns the stored entry.
func (c conn) UpsertLobbyEntry(ctx context.Context, e model.LobbyEntry) (model.LobbyEntry, error) {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO lobby (user_id, gender, gender_preference, tier, org_match_opt_in, entered_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			gender = excluded.gender,
			gender_preference = excluded.gender_preference,
			tier = excluded.tier,
			org_match_opt_in = excluded.org_match_opt_in
	`,
		e.UserID,
		string(e.Gender),
		string(e.GenderPreference),
		string(e.Tier),
		boolToInt(e.OrgMatchOptIn),
		formatTime(e.EnteredAt),
	)
	if err != nil {
		return model.LobbyEntry{}, fmt.Errorf("upsert lobby entry %s: %w", e.UserID, err)
	}
	return c.GetLobbyEntry(ctx, e.UserID)
}

// GetLobbyEntry returns the entry for userID.
// Returns an error matching model.ErrNotFound if the user is not waiting.
func (c conn) GetLobbyEntry(ctx context.Context, userID string) (model.LobbyEntry, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+lobbyColumns+` FROM lobby WHERE user_id = ?`, userID)
	e, err := scanLobbyEntry(row)
	if err != nil {
		return model.LobbyEntry{}, notFound(err, "get lobby entry", model.NotFound("lobby entry", userID))
	}
	return e, nil
}

// DeleteLobbyEntry removes the entry for userID.
// Returns true if an entry was removed.
func (c conn) DeleteLobbyEntry(ctx context.Context, userID string) (bool, error) {
	res, err := c.q.ExecContext(ctx, `DELETE FROM lobby WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("delete lobby entry %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete lobby entry %s: %w", userID, err)
	}
	return n > 0, nil
}

// LobbyEntries returns every entry in insertion order.
func (c conn) LobbyEntries(ctx context.Context) ([]model.LobbyEntry, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT `+lobbyColumns+` FROM lobby ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list lobby: %w", err)
	}
	defer rows.Close()

	var entries []model.LobbyEntry
	for rows.Next() {
		e, err := scanLobbyEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list lobby: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list lobby: %w", err)
	}
	return entries, nil
}

// LobbySize returns the number of waiting users.
func (c conn) LobbySize(ctx context.Context) (int, error) {
	var n int
	if err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM lobby`).Scan(&n); err != nil {
		return 0, fmt.Errorf("lobby size: %w", err)
	}
	return n, nil
}

// MatchedLobbyUsers returns ids of waiting users who also hold a match.
// Such entries contradict the lobby invariant.
func (c conn) MatchedLobbyUsers(ctx context.Context) ([]string, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT l.user_id FROM lobby l
		JOIN match_members m ON m.user_id = l.user_id
		ORDER BY l.seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("matched lobby users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("matched lobby users: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("matched lobby users: %w", err)
	}
	return ids, nil
}

func scanLobbyEntry(s scanner) (model.LobbyEntry, error) {
	var (
		e                  model.LobbyEntry
		gender, pref, tier string
		org                int
		entered            string
	)
	if err := s.Scan(&e.Seq, &e.UserID, &gender, &pref, &tier, &org, &entered); err != nil {
		return model.LobbyEntry{}, err
	}
	e.Gender = model.Gender(gender)
	e.GenderPreference = model.Preference(pref)
	e.Tier = model.Tier(tier)
	e.OrgMatchOptIn = org != 0

	var err error
	if e.EnteredAt, err = parseTime(entered); err != nil {
		return model.LobbyEntry{}, err
	}
	return e, nil
}
