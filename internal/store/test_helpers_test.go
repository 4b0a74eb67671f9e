package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/ghostchat/internal/model"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestUser writes a user with minimal required fields.
func createTestUser(t *testing.T, s *Store, id string, g model.Gender) model.User {
	t.Helper()
	u := model.User{
		ID:               id,
		DisplayName:      "user " + id,
		Gender:           g,
		GenderPreference: model.PreferAny,
		Tier:             model.TierFree,
		CreatedAt:        testNow,
	}
	if err := s.PutUser(context.Background(), u); err != nil {
		t.Fatalf("PutUser(%s) failed: %v", id, err)
	}
	return u
}

func lobbyEntryFor(u model.User, at time.Time) model.LobbyEntry {
	return model.LobbyEntry{
		UserID:           u.ID,
		Gender:           u.Gender,
		GenderPreference: u.GenderPreference,
		Tier:             u.Tier,
		OrgMatchOptIn:    u.OrgMatchOptIn,
		EnteredAt:        at,
	}
}
