// Package logging builds the process logger.
//
// Records go to stderr and, when a directory is configured, to a daily file
// named log_YYYY-MM-DD.txt in that directory.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/roach88/ghostchat/internal/clock"
)

// Options configures New.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// Dir receives daily log files. Empty disables file output.
	Dir string
	// Stderr overrides the console writer. Used by tests.
	Stderr io.Writer
	// Clock picks the daily file. Defaults to the system clock.
	Clock clock.Clock
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// New returns a text logger and a closer for its file output.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stderr
	if opts.Stderr != nil {
		out = opts.Stderr
	}

	var closer io.Closer = nopCloser{}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		c := opts.Clock
		if c == nil {
			c = clock.System{}
		}
		daily := NewDailyFile(opts.Dir, c)
		out = io.MultiWriter(out, daily)
		closer = daily
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// DailyFile appends to log_YYYY-MM-DD.txt, switching files when the date
// changes.
type DailyFile struct {
	dir   string
	clock clock.Clock

	mu   sync.Mutex
	day  string
	file *os.File
}

// NewDailyFile creates a writer for dir.
func NewDailyFile(dir string, c clock.Clock) *DailyFile {
	return &DailyFile{dir: dir, clock: c}
}

// FileName returns the log file name for t.
func FileName(t time.Time) string {
	return "log_" + t.Format("2006-01-02") + ".txt"
}

func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	day := now.Format("2006-01-02")
	if d.file == nil || day != d.day {
		if d.file != nil {
			d.file.Close()
		}
		f, err := os.OpenFile(filepath.Join(d.dir, FileName(now)), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			d.file = nil
			return 0, err
		}
		d.file, d.day = f, day
	}
	return d.file.Write(p)
}

// Close closes the current file.
func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
