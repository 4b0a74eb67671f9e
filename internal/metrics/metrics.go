// Package metrics exposes Prometheus instruments for the matchmaking loop.
//
// Instruments register with the default registry on package init; the
// admin HTTP server serves them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ghostchat"

var (
	// matchPasses counts match passes by outcome.
	// Labels: status (ok, error)
	matchPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matcher",
		Name:      "passes_total",
		Help:      "Match passes run",
	}, []string{"status"})

	// pairsCreated counts pairs by the tiers involved.
	// Labels: kind (vip_vip, vip_free, free_free)
	pairsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matcher",
		Name:      "pairs_created_total",
		Help:      "Pairs created by the matcher",
	}, []string{"kind"})

	// pairFailures counts pairing writes that failed and left both users waiting.
	pairFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matcher",
		Name:      "pair_failures_total",
		Help:      "Pairing writes that failed",
	})

	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "matcher",
		Name:      "pass_duration_seconds",
		Help:      "Match pass latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	lobbySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "lobby",
		Name:      "size",
		Help:      "Users waiting in the lobby at the start of the last pass",
	})

	// vipGrants counts VIP grants.
	// Labels: reason (referral_reward, manual)
	vipGrants = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "membership",
		Name:      "vip_grants_total",
		Help:      "VIP memberships granted",
	}, []string{"reason"})

	// downgrades counts VIP to Free transitions.
	// Labels: source (sweep, lookup, manual)
	downgrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "membership",
		Name:      "downgrades_total",
		Help:      "Memberships downgraded to Free",
	}, []string{"source"})

	referrals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "membership",
		Name:      "referrals_recorded_total",
		Help:      "Distinct referrals recorded",
	})

	// notifications counts outbound gateway calls.
	// Labels: kind (text, media, copy, answer), status (sent, failed, dropped)
	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "notifications_total",
		Help:      "Outbound notifications by kind and status",
	}, []string{"kind", "status"})

	// updates counts inbound gateway updates.
	// Labels: status (ok, error)
	updates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "updates_processed_total",
		Help:      "Inbound updates handled",
	}, []string{"status"})

	// otpCodes counts verification codes.
	// Labels: result (sent, send_failed, verified, rejected)
	otpCodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "otp",
		Name:      "codes_total",
		Help:      "Verification codes by result",
	}, []string{"result"})
)

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// RecordMatchPass records one pass of the matcher.
//
// Inputs:
//
//	waiting - Lobby size when the pass started.
//	durationSec - Pass duration in seconds.
//	ok - Whether the pass completed without a store error.
func RecordMatchPass(waiting int, durationSec float64, ok bool) {
	lobbySize.Set(float64(waiting))
	passDuration.Observe(durationSec)
	matchPasses.WithLabelValues(status(ok)).Inc()
}

// RecordPair records a created pair.
func RecordPair(kind string) {
	pairsCreated.WithLabelValues(kind).Inc()
}

// RecordPairFailure records a pairing write that failed.
func RecordPairFailure() {
	pairFailures.Inc()
}

// RecordVIPGrant records a VIP grant with its reason.
func RecordVIPGrant(reason string) {
	vipGrants.WithLabelValues(reason).Inc()
}

// RecordDowngrade records a VIP to Free transition.
//
// Inputs:
//
//	source - "sweep", "lookup" or "manual".
func RecordDowngrade(source string) {
	downgrades.WithLabelValues(source).Inc()
}

// RecordReferral records a newly counted referral.
func RecordReferral() {
	referrals.Inc()
}

// RecordNotification records an outbound gateway call.
//
// Inputs:
//
//	kind - "text", "media", "copy" or "answer".
//	outcome - "sent", "failed" or "dropped".
func RecordNotification(kind, outcome string) {
	notifications.WithLabelValues(kind, outcome).Inc()
}

// RecordUpdate records a handled inbound update.
func RecordUpdate(ok bool) {
	updates.WithLabelValues(status(ok)).Inc()
}

// RecordOTP records a verification code event.
func RecordOTP(result string) {
	otpCodes.WithLabelValues(result).Inc()
}
