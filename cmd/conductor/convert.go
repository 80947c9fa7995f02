package main

import (
	"talentgrid-hq/conductor/pkg/config"
	"talentgrid-hq/conductor/pkg/events/recorder"
	"talentgrid-hq/conductor/pkg/events/retention"
	"talentgrid-hq/conductor/pkg/events/storage"
	"talentgrid-hq/conductor/pkg/monitor"
	"talentgrid-hq/conductor/pkg/selection"
	"talentgrid-hq/conductor/pkg/telemetry/logging"
	"talentgrid-hq/conductor/pkg/telemetry/metrics"
	"talentgrid-hq/conductor/pkg/traffic"
)

func loggingConfig(c config.LoggingConfig) logging.Config {
	return logging.Config{
		Level:     c.Level,
		Format:    c.Format,
		AddSource: c.AddSource,
		RedactPII: c.RedactPIIEnabled(),
	}
}

func metricsConfig(c config.MetricsConfig) metrics.Config {
	return metrics.Config{
		Enabled:   c.IsEnabled(),
		Namespace: c.Namespace,
	}
}

func breakerConfig(c config.MonitorConfig) monitor.BreakerConfig {
	return monitor.BreakerConfig{
		ErrorRateThreshold: c.ErrorRateThreshold,
		LatencyMargin:      c.LatencyMargin,
		MinSamples:         c.MinSamples,
		Debounce:           c.Debounce,
		CoolDown:           c.CoolDown,
		ProbeSuccesses:     c.ProbeSuccesses,
		ProbeRate:          c.ProbeRate,
		ProbeBurst:         c.ProbeBurst,
	}
}

func monitorConfig(c config.MonitorConfig) monitor.Config {
	return monitor.Config{
		WindowSize:       c.Window,
		Buckets:          c.Buckets,
		EvaluateInterval: c.EvaluateInterval,
		Breaker:          breakerConfig(c),
	}
}

func selectionConfig(c config.SelectionConfig) selection.Config {
	return selection.Config{
		CriticalPositions:  append([]string(nil), c.CriticalPositions...),
		ConsensusSize:      c.ConsensusSize,
		ConsensusTolerance: c.ConsensusTolerance,
	}
}

func rolloutRules(c config.RolloutConfig) traffic.Rules {
	rules := traffic.Rules{
		Percentage: c.Percentage,
		Allow:      append([]string(nil), c.Allow...),
		Deny:       append([]string(nil), c.Deny...),
	}
	if len(c.Segments) > 0 {
		rules.Segments = make(map[string]float64, len(c.Segments))
		for k, v := range c.Segments {
			rules.Segments[k] = v
		}
	}
	return rules
}

func trafficConfig(c config.RolloutConfig) traffic.Config {
	return traffic.Config{
		Rules:            rolloutRules(c),
		Salt:             c.Salt,
		PropagationDelay: c.PropagationDelay,
	}
}

func eventStorageConfig(c config.SQLiteConfig) *storage.SQLiteConfig {
	return &storage.SQLiteConfig{
		Path:         c.Path,
		MaxOpenConns: c.MaxOpenConns,
		MaxIdleConns: c.MaxIdleConns,
		WALMode:      true,
		BusyTimeout:  c.BusyTimeout,
	}
}

func recorderConfig(c config.EventsConfig) *recorder.Config {
	return &recorder.Config{
		Enabled:        c.IsEnabled(),
		AsyncBuffer:    c.Recorder.AsyncBuffer,
		WriteTimeout:   c.Recorder.WriteTimeout,
		RecordAttempts: c.Recorder.RecordAttempts == nil || *c.Recorder.RecordAttempts,
	}
}

func retentionConfig(c config.RetentionConfig) *retention.Config {
	return &retention.Config{
		RetentionDays:       c.Days,
		PruneSchedule:       c.PruneSchedule,
		ArchiveBeforeDelete: c.ArchiveBeforeDelete,
		ArchivePath:         c.ArchivePath,
		MaxEvents:           c.MaxEvents,
	}
}
