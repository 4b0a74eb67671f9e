package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/ghostchat/internal/model"
	"github.com/roach88/ghostchat/internal/store"
)

// Epoch is the default start time for test clocks.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// OpenStore opens a file-backed store in a temp dir, closed on cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewUser returns a Free user with preference Any created at Epoch.
func NewUser(id string, g model.Gender) model.User {
	return model.User{
		ID:               id,
		DisplayName:      "user " + id,
		Gender:           g,
		GenderPreference: model.PreferAny,
		Tier:             model.TierFree,
		CreatedAt:        Epoch,
		UpdatedAt:        Epoch,
	}
}

// PutUser writes u and fails the test on error.
func PutUser(t testing.TB, s *store.Store, u model.User) model.User {
	t.Helper()
	if err := s.PutUser(context.Background(), u); err != nil {
		t.Fatalf("PutUser(%s) failed: %v", u.ID, err)
	}
	return u
}

// GrantVIP marks u as VIP with a membership expiring at expires.
func GrantVIP(t testing.TB, s *store.Store, userID string, expires time.Time) {
	t.Helper()
	ctx := context.Background()
	err := s.Update(ctx, func(tx *store.Tx) error {
		if err := tx.SetTier(ctx, userID, model.TierVIP, Epoch); err != nil {
			return err
		}
		return tx.PutMembership(ctx, model.Membership{
			UserID:    userID,
			GrantedAt: Epoch,
			ExpiresAt: expires,
			Reason:    model.ReasonManual,
		})
	})
	if err != nil {
		t.Fatalf("GrantVIP(%s) failed: %v", userID, err)
	}
}
