package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ghostchat/internal/testutil"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]string{"": "INFO", "debug": "DEBUG", "WARN": "WARN", "error": "ERROR"} {
		lvl, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, lvl.String())
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: "warn", Stderr: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "kind", "issue")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown kind=issue")
}

func TestNew_DailyFiles(t *testing.T) {
	dir := t.TempDir()
	clk := testutil.NewFakeClock(time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC))
	var buf bytes.Buffer

	logger, closer, err := New(Options{Dir: dir, Stderr: &buf, Clock: clk})
	require.NoError(t, err)

	logger.Info("before midnight")
	clk.Advance(2 * time.Minute)
	logger.Info("after midnight")
	require.NoError(t, closer.Close())

	first, err := os.ReadFile(filepath.Join(dir, "log_2026-03-01.txt"))
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dir, FileName(clk.Now())))
	require.NoError(t, err)

	assert.Contains(t, string(first), "before midnight")
	assert.NotContains(t, string(first), "after midnight")
	assert.Contains(t, string(second), "after midnight")
	assert.Contains(t, buf.String(), "before midnight", "console still receives records")
}

func TestDailyFile_Appends(t *testing.T) {
	dir := t.TempDir()
	clk := testutil.NewFakeClock(testutil.Epoch)

	w := NewDailyFile(dir, clk)
	_, err := w.Write([]byte("one\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w = NewDailyFile(dir, clk)
	_, err = w.Write([]byte("two\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	b, err := os.ReadFile(filepath.Join(dir, FileName(testutil.Epoch)))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(b))
}
