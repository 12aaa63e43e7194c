package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the rules module.
type Metrics struct {
	RulesetLoads *prometheus.CounterVec
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
}

// New creates a new Metrics instance with all rules module metrics registered.
func New() *Metrics {
	return &Metrics{
		RulesetLoads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_ruleset_loads_total",
			Help: "Active ruleset load attempts, by outcome",
		}, []string{"outcome"}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_ruleset_cache_hits_total",
			Help: "Active ruleset snapshot cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_ruleset_cache_misses_total",
			Help: "Active ruleset snapshot cache misses",
		}),
	}
}

// RecordRulesetLoad counts one load attempt with its outcome.
func (m *Metrics) RecordRulesetLoad(outcome string) {
	m.RulesetLoads.WithLabelValues(outcome).Inc()
}

// RecordCacheHit counts one snapshot cache hit.
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss counts one snapshot cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}
