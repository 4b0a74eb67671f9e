package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ghostchat/internal/model"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"users", "lobby", "matches", "match_members", "referrals",
		"referral_links", "memberships", "registrations", "meta"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	createTestUser(t, s, "u1", model.GenderMale)
	_, err = s.GetUser(context.Background(), "u1")
	require.NoError(t, err)
}

func TestOpenWithRecovery_HealthyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	createTestUser(t, s, "u1", model.GenderMale)
	require.NoError(t, s.Close())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, recovered, err := OpenWithRecovery(path, logger)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, recovered)
	_, err = s.GetUser(context.Background(), "u1")
	assert.NoError(t, err, "existing records survive a clean open")
}

func TestOpenWithRecovery_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("not a database "), 512), 0o600))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, recovered, err := OpenWithRecovery(path, logger)
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, recovered)

	n, err := s.LobbySize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "recovered store starts empty")

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.NotEmpty(t, matches, "damaged file is kept aside")
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s, "u1", model.GenderMale)

	boom := errors.New("boom")
	err := s.Update(ctx, func(tx *Tx) error {
		if _, err := tx.UpsertLobbyEntry(ctx, lobbyEntryFor(u, testNow)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := s.LobbySize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpdate_Commits(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s, "u1", model.GenderMale)

	err := s.Update(ctx, func(tx *Tx) error {
		_, err := tx.UpsertLobbyEntry(ctx, lobbyEntryFor(u, testNow))
		return err
	})
	require.NoError(t, err)

	n, err := s.LobbySize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
