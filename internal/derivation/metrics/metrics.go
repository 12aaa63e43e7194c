package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the derivation engine.
type Metrics struct {
	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	ItemsTouched  *prometheus.CounterVec
	LockConflicts prometheus.Counter
}

// New creates a new Metrics instance with all derivation metrics registered.
func New() *Metrics {
	return &Metrics{
		Runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_derivation_runs_total",
			Help: "Derivation runs by outcome",
		}, []string{"outcome"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "conforma_derivation_duration_seconds",
			Help:    "End-to-end duration of derivation runs",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		ItemsTouched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_derivation_items_total",
			Help: "Scope items touched by reconciliation, by action",
		}, []string{"action"}),
		LockConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_derivation_lock_conflicts_total",
			Help: "Derivation requests rejected because a run was already in progress",
		}),
	}
}

// RecordRun records one finished run ("succeeded", "failed", or "no_changes")
// with its duration.
func (m *Metrics) RecordRun(outcome string, start time.Time) {
	m.Runs.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(time.Since(start).Seconds())
}

// RecordReconciliation records the per-action row counts of one reconciliation.
func (m *Metrics) RecordReconciliation(added, updated, deactivated int) {
	m.ItemsTouched.WithLabelValues("added").Add(float64(added))
	m.ItemsTouched.WithLabelValues("updated").Add(float64(updated))
	m.ItemsTouched.WithLabelValues("deactivated").Add(float64(deactivated))
}

// RecordLockConflict records a fail-fast on the per-tenant derivation lock.
func (m *Metrics) RecordLockConflict() {
	m.LockConflicts.Inc()
}
