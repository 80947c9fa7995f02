package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"talentgrid-hq/conductor/pkg/execution"
	"talentgrid-hq/conductor/pkg/traffic"
)

// MatchMetrics tracks served match requests.
type MatchMetrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	fallbacks     *prometheus.CounterVec
	lowConfidence prometheus.Counter
	tried         prometheus.Histogram
}

// NewMatchMetrics creates and registers request metrics.
func NewMatchMetrics(cfg Config, registry *prometheus.Registry) *MatchMetrics {
	m := &MatchMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "match",
				Name:      "requests_total",
				Help:      "Match requests by path, decision mode, selection reason and outcome",
			},
			[]string{"path", "mode", "decision", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "match",
				Name:      "duration_seconds",
				Help:      "End-to-end match latency in seconds",
				Buckets:   cfg.LatencyBuckets,
			},
			[]string{"path"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "match",
				Name:      "fallbacks_total",
				Help:      "Requests answered by a fallback engine, by trigger",
			},
			[]string{"reason"},
		),
		lowConfidence: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "match",
				Name:      "low_confidence_total",
				Help:      "Consensus results flagged for engine disagreement",
			},
		),
		tried: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "match",
				Name:      "engines_tried",
				Help:      "Engines attempted per request",
				Buckets:   []float64{1, 2, 3, 4, 5},
			},
		),
	}

	registry.MustRegister(m.requests, m.duration, m.fallbacks, m.lowConfidence, m.tried)
	return m
}

// RecordSuccess records an answered request.
func (m *MatchMetrics) RecordSuccess(path traffic.Path, res *execution.Result, latency time.Duration) {
	m.requests.WithLabelValues(string(path), res.Mode.String(), string(res.Decision), "success").Inc()
	m.duration.WithLabelValues(string(path)).Observe(latency.Seconds())
	m.tried.Observe(float64(res.Tried))

	switch res.Reason {
	case execution.ReasonFallbackAfterTimeout, execution.ReasonFallbackAfterError:
		m.fallbacks.WithLabelValues(res.Reason).Inc()
	}
	if res.LowConfidence {
		m.lowConfidence.Inc()
	}
}

// RecordFailure records a request that ended in an error. code is the
// response error code.
func (m *MatchMetrics) RecordFailure(path traffic.Path, code string, latency time.Duration) {
	m.requests.WithLabelValues(string(path), "", "", code).Inc()
	m.duration.WithLabelValues(string(path)).Observe(latency.Seconds())
}
