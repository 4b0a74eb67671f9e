// Package matchstate answers who is paired with whom and ends pairings.
package matchstate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/ghostchat/internal/model"
	"github.com/roach88/ghostchat/internal/store"
)

// State resolves and releases matches.
//
// A pair is visible only when the canonical row and both member rows agree.
// Anything less is a half pair: it is deleted when seen, logged at error
// level, and reported to the caller as "no partner".
type State struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a State backed by s.
func New(s *store.Store, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{store: s, logger: logger.With("component", "matchstate")}
}

// Current returns the partner of userID. ok is false when the user is
// unmatched.
func (m *State) Current(ctx context.Context, userID string) (partner string, ok bool, err error) {
	err = m.store.Update(ctx, func(tx *store.Tx) error {
		partner, ok, err = m.resolve(ctx, tx, userID)
		return err
	})
	if err != nil {
		return "", false, fmt.Errorf("current match: %w", err)
	}
	return partner, ok, nil
}

// Release ends the match of userID for both participants and returns the
// former partner. ok is false when there was nothing to release.
func (m *State) Release(ctx context.Context, userID string) (partner string, ok bool, err error) {
	err = m.store.Update(ctx, func(tx *store.Tx) error {
		partner, ok, err = m.resolve(ctx, tx, userID)
		if err != nil || !ok {
			return err
		}
		mm, err := tx.GetMatchMember(ctx, userID)
		if err != nil {
			return err
		}
		return tx.DeleteMatch(ctx, mm.MatchID)
	})
	if err != nil {
		return "", false, fmt.Errorf("release match: %w", err)
	}
	if ok {
		m.logger.Info("match released", "user", userID, "partner", partner)
	}
	return partner, ok, nil
}

// resolve returns the partner of userID, healing a half pair if it finds
// one.
func (m *State) resolve(ctx context.Context, tx *store.Tx, userID string) (string, bool, error) {
	mm, err := tx.LiveMatch(ctx, userID)
	switch {
	case model.IsNotFound(err):
		return "", false, nil
	case model.IsCorrupt(err):
		m.logger.Error("half pair removed", "user", userID, "error", err)
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return mm.PartnerID, true, nil
}
