package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/ghostchat/internal/model"
)

// GetReferral returns the referral history of referrerID.
// A referrer with no history yields a zero Referral and ok=false.
func (c conn) GetReferral(ctx context.Context, referrerID string) (ref model.Referral, ok bool, err error) {
	var (
		earned int
		last   string
	)
	err = c.q.QueryRowContext(ctx, `
		SELECT referrer_id, total_count, vip_earned, last_referral_at
		FROM referrals WHERE referrer_id = ?
	`, referrerID).Scan(&ref.ReferrerID, &ref.TotalCount, &earned, &last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Referral{ReferrerID: referrerID}, false, nil
		}
		return model.Referral{}, false, fmt.Errorf("get referral: %w", err)
	}
	ref.VIPEarned = earned != 0
	if ref.LastReferralAt, err = parseTime(last); err != nil {
		return model.Referral{}, false, err
	}

	rows, err := c.q.QueryContext(ctx, `
		SELECT referred_id FROM referral_links
		WHERE referrer_id = ? ORDER BY seq ASC
	`, referrerID)
	if err != nil {
		return model.Referral{}, false, fmt.Errorf("get referral links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return model.Referral{}, false, fmt.Errorf("get referral links: %w", err)
		}
		ref.Referred = append(ref.Referred, id)
	}
	if err := rows.Err(); err != nil {
		return model.Referral{}, false, fmt.Errorf("get referral links: %w", err)
	}
	return ref, true, nil
}

// AppendReferral records that referrerID brought in referredID.
// Returns added=false, with no writes, when the pair is already recorded.
// On success the total count is incremented and the last-referral stamp set.
func (c conn) AppendReferral(ctx context.Context, referrerID, referredID string, now time.Time) (added bool, err error) {
	var exists int
	err = c.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM referral_links WHERE referrer_id = ? AND referred_id = ?
	`, referrerID, referredID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("append referral: %w", err)
	}
	if exists > 0 {
		return false, nil
	}

	stamp := formatTime(now)
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO referrals (referrer_id, total_count, vip_earned, last_referral_at)
		VALUES (?, 1, 0, ?)
		ON CONFLICT(referrer_id) DO UPDATE SET
			total_count = total_count + 1,
			last_referral_at = excluded.last_referral_at
	`, referrerID, stamp)
	if err != nil {
		return false, fmt.Errorf("append referral: %w", err)
	}

	_, err = c.q.ExecContext(ctx, `
		INSERT INTO referral_links (referrer_id, referred_id, seq, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM referral_links WHERE referrer_id = ?), ?)
	`, referrerID, referredID, referrerID, stamp)
	if err != nil {
		return false, fmt.Errorf("append referral link: %w", err)
	}
	return true, nil
}

// PutReferral replaces the full history of a referrer. Used by import.
func (c conn) PutReferral(ctx context.Context, ref model.Referral) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO referrals (referrer_id, total_count, vip_earned, last_referral_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(referrer_id) DO UPDATE SET
			total_count = excluded.total_count,
			vip_earned = excluded.vip_earned,
			last_referral_at = excluded.last_referral_at
	`, ref.ReferrerID, ref.TotalCount, boolToInt(ref.VIPEarned), formatTime(ref.LastReferralAt))
	if err != nil {
		return fmt.Errorf("put referral %s: %w", ref.ReferrerID, err)
	}
	if _, err := c.q.ExecContext(ctx,
		`DELETE FROM referral_links WHERE referrer_id = ?`, ref.ReferrerID); err != nil {
		return fmt.Errorf("put referral %s: %w", ref.ReferrerID, err)
	}
	seen := make(map[string]bool, len(ref.Referred))
	seq := 0
	for _, id := range ref.Referred {
		if seen[id] {
			continue
		}
		seen[id] = true
		seq++
		_, err := c.q.ExecContext(ctx, `
			INSERT INTO referral_links (referrer_id, referred_id, seq, created_at)
			VALUES (?, ?, ?, ?)
		`, ref.ReferrerID, id, seq, formatTime(ref.LastReferralAt))
		if err != nil {
			return fmt.Errorf("put referral %s link %s: %w", ref.ReferrerID, id, err)
		}
	}
	return nil
}

// MarkVIPEarned sets the one-way vip_earned flag.
func (c conn) MarkVIPEarned(ctx context.Context, referrerID string) error {
	_, err := c.q.ExecContext(ctx,
		`UPDATE referrals SET vip_earned = 1 WHERE referrer_id = ?`, referrerID)
	if err != nil {
		return fmt.Errorf("mark vip earned %s: %w", referrerID, err)
	}
	return nil
}

// ReferrerCount is one row of the referral leaderboard.
type ReferrerCount struct {
	ReferrerID  string `json:"referrer_id"`
	DisplayName string `json:"display_name"`
	Count       int    `json:"count"`
}

// ReferralTotals aggregates the referral table.
type ReferralTotals struct {
	TotalReferrers int `json:"total_referrers"`
	TotalReferrals int `json:"total_referrals"`
	VIPEarned      int `json:"vip_earned"`
}

// ReferralTotals counts referrers, referrals and earned VIP flags.
func (c conn) ReferralTotals(ctx context.Context) (ReferralTotals, error) {
	var t ReferralTotals
	err := c.q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_count), 0), COALESCE(SUM(vip_earned), 0)
		FROM referrals
	`).Scan(&t.TotalReferrers, &t.TotalReferrals, &t.VIPEarned)
	if err != nil {
		return ReferralTotals{}, fmt.Errorf("referral totals: %w", err)
	}
	return t, nil
}

// TopReferrers returns up to limit referrers by count, highest first.
// Ties are broken by referrer id.
func (c conn) TopReferrers(ctx context.Context, limit int) ([]ReferrerCount, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT r.referrer_id, COALESCE(u.display_name, ''), r.total_count
		FROM referrals r
		LEFT JOIN users u ON u.id = r.referrer_id
		ORDER BY r.total_count DESC, r.referrer_id ASC COLLATE BINARY
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("top referrers: %w", err)
	}
	defer rows.Close()

	var top []ReferrerCount
	for rows.Next() {
		var rc ReferrerCount
		if err := rows.Scan(&rc.ReferrerID, &rc.DisplayName, &rc.Count); err != nil {
			return nil, fmt.Errorf("top referrers: %w", err)
		}
		top = append(top, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top referrers: %w", err)
	}
	return top, nil
}
