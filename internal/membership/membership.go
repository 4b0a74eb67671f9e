// Package membership tracks referrals and the VIP tier they unlock.
//
// Membership state machine:
//
//	Free -> VIP   on the referral that reaches the threshold, or an explicit grant
//	VIP  -> Free  when an expired membership is seen by the sweep or by a lookup
//
// A user's tier is VIP exactly while a membership record exists for them.
// Grant and downgrade change both in one transaction. VIP never auto-renews.
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/ghostchat/internal/clock"
	"github.com/roach88/ghostchat/internal/metrics"
	"github.com/roach88/ghostchat/internal/model"
	"github.com/roach88/ghostchat/internal/notify"
	"github.com/roach88/ghostchat/internal/store"
)

const (
	// DefaultVIPDays is the length of a referral reward.
	DefaultVIPDays = 30

	// DefaultThreshold is the referral count that earns VIP.
	DefaultThreshold = 5

	// TopReferrersLimit bounds the leaderboard returned by Stats.
	TopReferrersLimit = 10
)

// Engine records referrals and manages VIP memberships.
type Engine struct {
	store     *store.Store
	clock     clock.Clock
	notifier  notify.Notifier
	logger    *slog.Logger
	vipDays   int
	threshold int
}

// Option configures an Engine.
type Option func(*Engine)

// WithVIPDays sets the length of a referral reward.
func WithVIPDays(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.vipDays = days
		}
	}
}

// WithThreshold sets the referral count that earns VIP.
func WithThreshold(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.threshold = n
		}
	}
}

// New creates an Engine.
func New(s *store.Store, c clock.Clock, n notify.Notifier, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:     s,
		clock:     c,
		notifier:  n,
		logger:    logger.With("component", "membership"),
		vipDays:   DefaultVIPDays,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// VIPDays returns the configured reward length.
func (e *Engine) VIPDays() int { return e.vipDays }

// Threshold returns the configured referral threshold.
func (e *Engine) Threshold() int { return e.threshold }

// RecordReferral appends referredID to referrerID's referral list.
//
// Returns false with no error when the pair was already recorded. The
// referral that brings the count to the threshold then grants VIP in a
// second transaction; later referrals never grant again. A failed grant is
// logged and leaves the referral recorded with VIP not yet earned.
// Self-referral is not checked here.
func (e *Engine) RecordReferral(ctx context.Context, referrerID, referredID string) (bool, error) {
	now := e.clock.Now()

	var (
		added bool
		ref   model.Referral
	)
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		added, err = tx.AppendReferral(ctx, referrerID, referredID, now)
		if err != nil || !added {
			return err
		}
		ref, _, err = tx.GetReferral(ctx, referrerID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("record referral %s->%s: %w", referrerID, referredID, err)
	}
	if !added {
		e.logger.Debug("referral already recorded", "referrer", referrerID, "referred", referredID)
		return false, nil
	}

	metrics.RecordReferral()
	e.logger.Info("referral recorded", "referrer", referrerID, "referred", referredID, "total", ref.TotalCount)
	e.notifier.Notify(notify.Text(referrerID, fmt.Sprintf(
		"🎉 Great news! Someone joined using your referral link.\nYour total referrals: %d", ref.TotalCount)))

	if ref.TotalCount == e.threshold && !ref.VIPEarned {
		m, granted, err := e.rewardReferrer(ctx, referrerID, now)
		switch {
		case err != nil:
			e.logger.Error("referral reward failed", "referrer", referrerID, "total", ref.TotalCount, "error", err)
		case granted:
			e.announceGrant(m)
		}
	}
	return true, nil
}

// rewardReferrer grants the referral reward and marks it earned. granted is
// false when another caller earned it first.
func (e *Engine) rewardReferrer(ctx context.Context, referrerID string, now time.Time) (model.Membership, bool, error) {
	var (
		m       model.Membership
		granted bool
	)
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		ref, _, err := tx.GetReferral(ctx, referrerID)
		if err != nil || ref.VIPEarned {
			return err
		}
		m, err = e.grant(ctx, tx, referrerID, e.vipDays, model.ReasonReferralReward, now)
		if err != nil {
			return err
		}
		if err := tx.MarkVIPEarned(ctx, referrerID); err != nil {
			return err
		}
		granted = true
		return nil
	})
	if err != nil {
		return model.Membership{}, false, fmt.Errorf("reward referrer %s: %w", referrerID, err)
	}
	return m, granted, nil
}

// GrantVIP makes userID a VIP for days from now. An existing membership is
// overwritten, not extended.
func (e *Engine) GrantVIP(ctx context.Context, userID string, days int, reason string) (model.Membership, error) {
	if days <= 0 {
		days = e.vipDays
	}
	now := e.clock.Now()

	var m model.Membership
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		m, err = e.grant(ctx, tx, userID, days, reason, now)
		return err
	})
	if err != nil {
		return model.Membership{}, fmt.Errorf("grant vip %s: %w", userID, err)
	}
	e.announceGrant(m)
	return m, nil
}

func (e *Engine) grant(ctx context.Context, tx *store.Tx, userID string, days int, reason string, now time.Time) (model.Membership, error) {
	if _, err := tx.GetUser(ctx, userID); err != nil {
		return model.Membership{}, err
	}
	m := model.Membership{
		UserID:    userID,
		GrantedAt: now,
		ExpiresAt: now.AddDate(0, 0, days),
		Reason:    reason,
	}
	if err := tx.PutMembership(ctx, m); err != nil {
		return model.Membership{}, err
	}
	if err := tx.SetTier(ctx, userID, model.TierVIP, now); err != nil {
		return model.Membership{}, err
	}
	return m, nil
}

func (e *Engine) announceGrant(m model.Membership) {
	days := int(m.ExpiresAt.Sub(m.GrantedAt).Hours() / 24)
	metrics.RecordVIPGrant(m.Reason)
	e.logger.Info("vip granted", "user", m.UserID, "reason", m.Reason, "expires_at", m.ExpiresAt)
	e.notifier.Notify(notify.Text(m.UserID, fmt.Sprintf(
		"🎉 Congratulations! You've earned VIP membership for %d days by referring %d users!\n\n"+
			"✨ VIP Benefits:\n• Higher match priority\n• Faster connections\n• Premium features\n\n"+
			"Your VIP membership expires on: %s",
		days, e.threshold, m.ExpiresAt.Format("2006-01-02"))))
}

// IsExpired reports whether userID lacks a live membership. The expiry
// instant itself still counts as live.
func (e *Engine) IsExpired(ctx context.Context, userID string) (bool, error) {
	m, err := e.store.GetMembership(ctx, userID)
	if model.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("is expired %s: %w", userID, err)
	}
	return m.ExpiredAt(e.clock.Now()), nil
}

// Downgrade removes userID's membership and sets their tier to Free.
//
// Returns true when anything changed; the user is notified only then, so
// repeated calls are silent no-ops. source labels the trigger in metrics
// ("sweep", "lookup" or "manual").
func (e *Engine) Downgrade(ctx context.Context, userID, source string) (bool, error) {
	now := e.clock.Now()

	var changed bool
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		deleted, err := tx.DeleteMembership(ctx, userID)
		if err != nil {
			return err
		}
		changed = deleted

		u, err := tx.GetUser(ctx, userID)
		if model.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if u.Tier == model.TierFree {
			return nil
		}
		changed = true
		return tx.SetTier(ctx, userID, model.TierFree, now)
	})
	if err != nil {
		return false, fmt.Errorf("downgrade %s: %w", userID, err)
	}
	if !changed {
		return false, nil
	}

	metrics.RecordDowngrade(source)
	e.logger.Info("vip downgraded", "user", userID, "source", source)
	e.notifier.Notify(notify.Text(userID, fmt.Sprintf(
		"Your VIP membership has expired. You've been downgraded to Free status.\n\n"+
			"To regain VIP membership, refer %d more users to the bot!", e.threshold)))
	return true, nil
}

// SweepExpiries downgrades every membership past its expiry and returns how
// many were processed. A failure on one user is logged and does not stop the
// sweep; the first such error is returned with the count.
func (e *Engine) SweepExpiries(ctx context.Context) (int, error) {
	ids, err := e.store.ExpiredMemberships(ctx, e.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("sweep expiries: %w", err)
	}

	var (
		count    int
		firstErr error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if _, err := e.Downgrade(ctx, id, "sweep"); err != nil {
			e.logger.Error("sweep downgrade failed", "user", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		count++
	}

	if count > 0 {
		e.logger.Info("expiry sweep done", "downgraded", count)
	}
	return count, firstErr
}

// Referral returns referrerID's aggregate. A referrer with no referrals yet
// gets a zero aggregate.
func (e *Engine) Referral(ctx context.Context, referrerID string) (model.Referral, error) {
	ref, _, err := e.store.GetReferral(ctx, referrerID)
	if err != nil {
		return model.Referral{}, fmt.Errorf("referral %s: %w", referrerID, err)
	}
	return ref, nil
}

// ReferralCount returns how many distinct users referrerID has referred.
func (e *Engine) ReferralCount(ctx context.Context, referrerID string) (int, error) {
	ref, err := e.Referral(ctx, referrerID)
	if err != nil {
		return 0, err
	}
	return ref.TotalCount, nil
}

// ReferralLink returns the deep link that credits userID.
func ReferralLink(botUsername, userID string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, userID)
}

// Stats summarizes referral activity.
type Stats struct {
	TotalReferrers int                   `json:"total_referrers"`
	TotalReferrals int                   `json:"total_referrals"`
	VIPEarned      int                   `json:"vip_earned"`
	Top            []store.ReferrerCount `json:"top"`
}

// Stats returns referral totals and the top referrers.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	totals, err := e.store.ReferralTotals(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("referral stats: %w", err)
	}
	top, err := e.store.TopReferrers(ctx, TopReferrersLimit)
	if err != nil {
		return Stats{}, fmt.Errorf("referral stats: %w", err)
	}
	return Stats{
		TotalReferrers: totals.TotalReferrers,
		TotalReferrals: totals.TotalReferrals,
		VIPEarned:      totals.VIPEarned,
		Top:            top,
	}, nil
}
