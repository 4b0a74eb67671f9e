// Package lobby manages the pool of users waiting for a partner.
package lobby

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/ghostchat/internal/clock"
	"github.com/roach88/ghostchat/internal/model"
	"github.com/roach88/ghostchat/internal/store"
)

// Lobby is the waiting pool, keyed by user id.
//
// At most one entry exists per user, and never while the user holds a
// match. Both properties are enforced inside the store transaction that
// writes the entry.
type Lobby struct {
	store  *store.Store
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Lobby backed by s.
func New(s *store.Store, c clock.Clock, logger *slog.Logger) *Lobby {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lobby{store: s, clock: c, logger: logger.With("component", "lobby")}
}

// Enter puts userID in the lobby, or refreshes their existing entry from the
// current user record. A refreshed entry keeps its queue position.
//
// Returns an error matching model.ErrAlreadyMatched if the user has a
// partner, and model.ErrNotFound if the user is not registered.
func (l *Lobby) Enter(ctx context.Context, userID string, orgMatch bool) (model.LobbyEntry, error) {
	var entry model.LobbyEntry
	err := l.store.Update(ctx, func(tx *store.Tx) error {
		matched, err := l.liveMatch(ctx, tx, userID)
		if err != nil {
			return err
		}
		if matched {
			return model.AlreadyMatched(userID)
		}

		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}

		entry, err = tx.UpsertLobbyEntry(ctx, model.LobbyEntry{
			UserID:           u.ID,
			Gender:           u.Gender,
			GenderPreference: u.GenderPreference,
			Tier:             u.Tier,
			OrgMatchOptIn:    orgMatch,
			EnteredAt:        l.clock.Now(),
		})
		return err
	})
	if err != nil {
		return model.LobbyEntry{}, fmt.Errorf("enter lobby: %w", err)
	}

	l.logger.Debug("lobby entry written",
		"user", userID,
		"seq", entry.Seq,
		"tier", entry.Tier,
		"org_match", entry.OrgMatchOptIn,
	)
	return entry, nil
}

// Leave removes userID from the lobby. Returns false if they were not
// waiting.
func (l *Lobby) Leave(ctx context.Context, userID string) (bool, error) {
	removed, err := l.store.DeleteLobbyEntry(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("leave lobby: %w", err)
	}
	return removed, nil
}

// Snapshot returns the waiting entries in insertion order.
//
// Entries belonging to matched users are deleted first and reported at
// error level; they never reach the caller. A half pair behind an entry is
// removed instead and the entry stays.
func (l *Lobby) Snapshot(ctx context.Context) ([]model.LobbyEntry, error) {
	var entries []model.LobbyEntry
	err := l.store.Update(ctx, func(tx *store.Tx) error {
		stale, err := tx.MatchedLobbyUsers(ctx)
		if err != nil {
			return err
		}
		for _, id := range stale {
			matched, err := l.liveMatch(ctx, tx, id)
			if err != nil {
				return err
			}
			if !matched {
				continue
			}
			if _, err := tx.DeleteLobbyEntry(ctx, id); err != nil {
				return err
			}
			l.logger.Error("lobby entry for matched user removed",
				"user", id,
				"error", model.Corrupt(id, "lobby entry while matched"),
			)
		}

		entries, err = tx.LobbyEntries(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("lobby snapshot: %w", err)
	}
	return entries, nil
}

// liveMatch reports whether userID holds a complete pair. A half pair is
// removed, logged and reported as unmatched.
func (l *Lobby) liveMatch(ctx context.Context, tx *store.Tx, userID string) (bool, error) {
	_, err := tx.LiveMatch(ctx, userID)
	switch {
	case model.IsNotFound(err):
		return false, nil
	case model.IsCorrupt(err):
		l.logger.Error("half pair removed", "user", userID, "error", err)
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// Size returns the number of waiting users.
func (l *Lobby) Size(ctx context.Context) (int, error) {
	return l.store.LobbySize(ctx)
}

// Contains reports whether userID is waiting.
func (l *Lobby) Contains(ctx context.Context, userID string) (bool, error) {
	_, err := l.store.GetLobbyEntry(ctx, userID)
	if model.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Stats summarizes the waiting pool.
type Stats struct {
	Total int `json:"total"`
	VIP   int `json:"vip"`
	Free  int `json:"free"`
}

// Stats counts waiting users by effective tier. A user counts as VIP only
// while their user record says VIP and their membership has not expired.
func (l *Lobby) Stats(ctx context.Context) (Stats, error) {
	entries, err := l.store.LobbyEntries(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("lobby stats: %w", err)
	}

	now := l.clock.Now()
	st := Stats{Total: len(entries)}
	for _, e := range entries {
		vip, err := l.isActiveVIP(ctx, e.UserID, now)
		if err != nil {
			return Stats{}, fmt.Errorf("lobby stats: %w", err)
		}
		if vip {
			st.VIP++
		} else {
			st.Free++
		}
	}
	return st, nil
}

func (l *Lobby) isActiveVIP(ctx context.Context, userID string, now time.Time) (bool, error) {
	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if u.Tier != model.TierVIP {
		return false, nil
	}
	m, err := l.store.GetMembership(ctx, userID)
	if model.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !m.ExpiredAt(now), nil
}
