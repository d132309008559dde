package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RewardsMetrics instruments the ledger, the settlement guard, the expiry
// sweep and outbound event delivery. A nil receiver or a nil registerer turns
// every call into a no-op.
type RewardsMetrics struct {
	adjustments  *prometheus.CounterVec
	adjustCents  *prometheus.CounterVec
	clamped      prometheus.Counter
	lockWait     prometheus.Histogram
	lockTimeouts prometheus.Counter
	claims       *prometheus.CounterVec
	swept        *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
}

// NewRewardsMetrics registers the rewards metrics on reg.
func NewRewardsMetrics(reg prometheus.Registerer) *RewardsMetrics {
	if reg == nil {
		return &RewardsMetrics{}
	}
	m := &RewardsMetrics{
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_ledger_adjustments_total",
			Help: "Ledger adjustments committed, by entry type.",
		}, []string{"type"}),
		adjustCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_ledger_adjusted_cents_total",
			Help: "Absolute effective cents moved by ledger adjustments, by entry type and direction.",
		}, []string{"type", "direction"}),
		clamped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rewards_ledger_clamped_total",
			Help: "Adjustments whose requested debit exceeded the balance and were floored at zero.",
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rewards_ledger_lock_wait_seconds",
			Help:    "Time spent waiting for the per-user lock.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rewards_ledger_lock_timeouts_total",
			Help: "Per-user lock acquisitions that timed out.",
		}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_settlement_claims_total",
			Help: "Settlement marker claims, by marker key and result.",
		}, []string{"marker", "result"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_expiry_swept_total",
			Help: "Expiry sweep results: users debited and cents reclaimed.",
		}, []string{"unit"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_outbox_deliveries_total",
			Help: "Outbound event delivery attempts, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
	}
	reg.MustRegister(m.adjustments, m.adjustCents, m.clamped, m.lockWait, m.lockTimeouts, m.claims, m.swept, m.deliveries)
	return m
}

// ObserveAdjust records a committed adjustment.
func (m *RewardsMetrics) ObserveAdjust(entryType string, effectiveCents int64, clamped bool) {
	if m == nil || m.adjustments == nil {
		return
	}
	label := normalizeLabel(entryType)
	m.adjustments.WithLabelValues(label).Inc()
	direction := "credit"
	amount := effectiveCents
	if amount < 0 {
		direction = "debit"
		amount = -amount
	}
	m.adjustCents.WithLabelValues(label, direction).Add(float64(amount))
	if clamped {
		m.clamped.Inc()
	}
}

// ObserveLockWait records how long a caller waited for a user lock.
func (m *RewardsMetrics) ObserveLockWait(d time.Duration, timedOut bool) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
	if timedOut {
		m.lockTimeouts.Inc()
	}
}

// ObserveClaim records the outcome of a settlement marker claim.
func (m *RewardsMetrics) ObserveClaim(marker string, granted bool) {
	if m == nil || m.claims == nil {
		return
	}
	result := "duplicate"
	if granted {
		result = "granted"
	}
	m.claims.WithLabelValues(normalizeLabel(marker), result).Inc()
}

// ObserveSweep records one sweep's totals.
func (m *RewardsMetrics) ObserveSweep(users int, cents int64) {
	if m == nil || m.swept == nil {
		return
	}
	m.swept.WithLabelValues("users").Add(float64(users))
	m.swept.WithLabelValues("cents").Add(float64(cents))
}

// ObserveDelivery records one outbound event delivery attempt.
func (m *RewardsMetrics) ObserveDelivery(eventType, outcome string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
