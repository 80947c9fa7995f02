package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/execution"
)

// CacheMetrics tracks the score cache.
type CacheMetrics struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	evictions prometheus.Counter
}

// NewCacheMetrics creates and registers cache metrics.
func NewCacheMetrics(cfg Config, registry *prometheus.Registry) *CacheMetrics {
	m := &CacheMetrics{
		hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Score cache hits by engine",
			},
			[]string{"engine"},
		),
		misses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Attempts that called the engine live, by engine",
			},
			[]string{"engine"},
		),
		evictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "cache",
				Name:      "evictions_total",
				Help:      "Entries evicted from the in-memory cache",
			},
		),
	}

	registry.MustRegister(m.hits, m.misses, m.evictions)
	return m
}

// RecordLookup classifies an attempt as a hit or a miss.
func (m *CacheMetrics) RecordLookup(o execution.Outcome) {
	if o.Status == engines.StatusCacheHit {
		m.hits.WithLabelValues(o.Engine).Inc()
		return
	}
	m.misses.WithLabelValues(o.Engine).Inc()
}
