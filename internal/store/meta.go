package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Well-known meta keys.
const (
	MetaUpdateOffset = "update_offset"
	MetaBotStarted   = "bot_started"
	MetaUserTotal    = "user_total"
)

// GetMeta returns the value stored under key and whether it exists.
func (c conn) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := c.q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}
	return v, true, nil
}

// SetMeta stores value under key.
func (c conn) SetMeta(ctx context.Context, key, value string) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// GetMetaInt reads an integer meta value; a missing key reads as 0.
func (c conn) GetMetaInt(ctx context.Context, key string) (int64, error) {
	v, ok, err := c.GetMeta(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("get meta %s: %w", key, err)
	}
	return n, nil
}

// SetMetaInt stores an integer meta value.
func (c conn) SetMetaInt(ctx context.Context, key string, n int64) error {
	return c.SetMeta(ctx, key, strconv.FormatInt(n, 10))
}

// IncrMeta adds delta to an integer meta value and returns the result.
func (c conn) IncrMeta(ctx context.Context, key string, delta int64) (int64, error) {
	var n int64
	err := c.q.QueryRowContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + ? AS TEXT)
		RETURNING CAST(value AS INTEGER)
	`, key, strconv.FormatInt(delta, 10), delta).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("incr meta %s: %w", key, err)
	}
	return n, nil
}
