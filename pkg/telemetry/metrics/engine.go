package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/execution"
	"talentgrid-hq/conductor/pkg/monitor"
)

// EngineMetrics tracks scoring engine calls and breaker state.
type EngineMetrics struct {
	attempts    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	enabled     *prometheus.GaugeVec
	weight      *prometheus.GaugeVec
}

// NewEngineMetrics creates and registers engine metrics.
func NewEngineMetrics(cfg Config, registry *prometheus.Registry) *EngineMetrics {
	m := &EngineMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "engine",
				Name:      "attempts_total",
				Help:      "Engine attempts by outcome (success, cache_hit, error, timeout)",
			},
			[]string{"engine", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "engine",
				Name:      "attempt_duration_seconds",
				Help:      "Live engine call latency in seconds",
				Buckets:   cfg.LatencyBuckets,
			},
			[]string{"engine"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Failed engine attempts by error kind",
			},
			[]string{"engine", "kind"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "breaker",
				Name:      "state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"engine"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "breaker",
				Name:      "transitions_total",
				Help:      "Circuit breaker state transitions",
			},
			[]string{"engine", "from", "to", "reason"},
		),
		enabled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "engine",
				Name:      "enabled",
				Help:      "Whether the engine is enabled in the registry (1=enabled)",
			},
			[]string{"engine"},
		),
		weight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "engine",
				Name:      "weight",
				Help:      "Current engine weight",
			},
			[]string{"engine"},
		),
	}

	registry.MustRegister(m.attempts, m.latency, m.errors, m.state, m.transitions, m.enabled, m.weight)
	return m
}

// RecordAttempt records one attempt. Cache hits are counted but excluded from
// the latency histogram.
func (m *EngineMetrics) RecordAttempt(o execution.Outcome) {
	m.attempts.WithLabelValues(o.Engine, string(o.Status)).Inc()
	if o.Status != engines.StatusCacheHit {
		m.latency.WithLabelValues(o.Engine).Observe(o.Latency.Seconds())
	}
	if o.Err != nil {
		m.errors.WithLabelValues(o.Engine, engines.Kind(o.Err)).Inc()
	}
}

// RecordTransition records a breaker state change.
func (m *EngineMetrics) RecordTransition(t monitor.Transition) {
	m.transitions.WithLabelValues(t.Engine, t.From.String(), t.To.String(), t.Reason).Inc()
	m.state.WithLabelValues(t.Engine).Set(float64(t.To))
}

// UpdateStatus publishes registry and breaker state for one engine.
func (m *EngineMetrics) UpdateStatus(engine string, enabled bool, weight float64, state monitor.State) {
	v := 0.0
	if enabled {
		v = 1
	}
	m.enabled.WithLabelValues(engine).Set(v)
	m.weight.WithLabelValues(engine).Set(weight)
	m.state.WithLabelValues(engine).Set(float64(state))
}
