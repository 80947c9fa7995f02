package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"talentgrid-hq/conductor/pkg/traffic"
)

// RolloutMetrics tracks the rollout stage and the event pipeline.
type RolloutMetrics struct {
	percentage    prometheus.Gauge
	version       prometheus.Gauge
	forceLegacy   prometheus.Gauge
	changes       *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
}

// NewRolloutMetrics creates and registers rollout metrics.
func NewRolloutMetrics(cfg Config, registry *prometheus.Registry) *RolloutMetrics {
	m := &RolloutMetrics{
		percentage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "rollout",
			Name:      "percentage",
			Help:      "Effective share of traffic routed to the orchestrator",
		}),
		version: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "rollout",
			Name:      "version",
			Help:      "Version of the effective rollout stage",
		}),
		forceLegacy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "rollout",
			Name:      "force_legacy",
			Help:      "Whether the emergency legacy override is active (1=active)",
		}),
		changes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "rollout",
				Name:      "changes_total",
				Help:      "Rollout stages that became effective, by source",
			},
			[]string{"source"},
		),
		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Events dropped because the recorder buffer was full",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(m.percentage, m.version, m.forceLegacy, m.changes, m.eventsDropped)
	return m
}

// Update publishes a newly effective stage.
func (m *RolloutMetrics) Update(s traffic.Stage) {
	m.percentage.Set(float64(s.EffectivePercentage()))
	m.version.Set(float64(s.Version))
	if s.ForceLegacy {
		m.forceLegacy.Set(1)
	} else {
		m.forceLegacy.Set(0)
	}
	m.changes.WithLabelValues(s.Source).Inc()
}
