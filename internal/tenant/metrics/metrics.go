package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the tenant module.
// Tracks tenant/workspace creation counts and critical path durations.
type Metrics struct {
	TenantCreated        prometheus.Counter
	WorkspaceCreated     prometheus.Counter
	ResolveScopeDuration prometheus.Histogram
	ScopeResolutions     *prometheus.CounterVec
}

// New creates a new Metrics instance with all tenant module metrics registered.
func New() *Metrics {
	return &Metrics{
		TenantCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_tenants_created_total",
			Help: "Total number of tenants created",
		}),
		WorkspaceCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_workspaces_created_total",
			Help: "Total number of workspaces created",
		}),
		ResolveScopeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "conforma_resolve_scope_duration_seconds",
			Help:    "Duration of ResolveScope operations (request critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ScopeResolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_scope_resolutions_total",
			Help: "Scope resolution attempts by outcome",
		}, []string{"outcome"}),
	}
}

// IncrementTenantCreated records a successful tenant creation.
func (m *Metrics) IncrementTenantCreated() {
	m.TenantCreated.Inc()
}

// IncrementWorkspaceCreated records a successful workspace creation.
func (m *Metrics) IncrementWorkspaceCreated() {
	m.WorkspaceCreated.Inc()
}

// ObserveResolveScope records the duration of a ResolveScope operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveResolveScope(start time.Time) {
	m.ResolveScopeDuration.Observe(time.Since(start).Seconds())
}

// RecordScopeResolution records a scope resolution outcome
// ("resolved", "rejected", or "error").
func (m *Metrics) RecordScopeResolution(outcome string) {
	m.ScopeResolutions.WithLabelValues(outcome).Inc()
}
