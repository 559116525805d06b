package wallet

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess             = "success"
	outcomeInvalid             = "invalid"
	outcomeNotFound            = "not_found"
	outcomeAmountTooSmall      = "amount_too_small"
	outcomeChargeFailed        = "charge_failed"
	outcomeBalanceUpdateFailed = "balance_update_failed"
	outcomeError               = "error"
)

// Metrics holds the top-up instrumentation. A nil *Metrics records nothing.
type Metrics struct {
	topUps           *prometheus.CounterVec
	topUpDuration    prometheus.Histogram
	commitAttempts   prometheus.Histogram
	versionConflicts prometheus.Counter
}

// NewMetrics registers the wallet collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		topUps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "topups_total",
			Help:      "Top-up attempts by outcome",
		}, []string{"outcome"}),
		topUpDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wallet",
			Name:      "topup_duration_seconds",
			Help:      "End-to-end top-up latency including the gateway call",
			Buckets:   prometheus.DefBuckets,
		}),
		commitAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wallet",
			Name:      "topup_commit_attempts",
			Help:      "Balance-apply attempts used per top-up that reached the commit step",
			Buckets:   prometheus.LinearBuckets(1, 1, MaxRetries),
		}),
		versionConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "version_conflicts_total",
			Help:      "Optimistic version conflicts hit while applying balances",
		}),
	}
}

func (m *Metrics) observeTopUp(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.topUps.WithLabelValues(outcome).Inc()
	m.topUpDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeCommit(attempts int) {
	if m == nil {
		return
	}
	m.commitAttempts.Observe(float64(attempts))
}

func (m *Metrics) conflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
}
