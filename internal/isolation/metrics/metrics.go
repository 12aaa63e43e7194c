package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the isolation layer. Violations feed a
// distinct alert class; a non-zero rate is a security signal, not noise.
type Metrics struct {
	Violations *prometheus.CounterVec
}

// New creates a new Metrics instance with all isolation metrics registered.
func New() *Metrics {
	return &Metrics{
		Violations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_cross_tenant_violations_total",
			Help: "Writes rejected by the row-level isolation layer, by attempted operation",
		}, []string{"operation"}),
	}
}

// RecordViolation counts one rejected cross-tenant write.
func (m *Metrics) RecordViolation(operation string) {
	m.Violations.WithLabelValues(operation).Inc()
}
