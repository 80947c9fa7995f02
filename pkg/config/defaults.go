package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultRequestTimeout  = 2 * time.Second
	DefaultMaxBodyBytes    = int64(1048576) // 1MB

	// Engine defaults
	DefaultEngineWeight              = 1.0
	DefaultEngineTimeout             = 200 * time.Millisecond
	DefaultEngineHealthCheckInterval = 15 * time.Second

	// Selection defaults
	DefaultConsensusSize      = 2
	DefaultConsensusTolerance = 10.0

	// Rollout defaults
	DefaultRolloutSalt      = "conductor"
	DefaultRolloutStatePath = "data/rollout.db"

	// Monitor defaults
	DefaultMonitorWindow           = 5 * time.Minute
	DefaultMonitorBuckets          = 10
	DefaultMonitorEvaluateInterval = time.Second
	DefaultErrorRateThreshold      = 0.5
	DefaultLatencyMargin           = 0.25
	DefaultMinSamples              = 10
	DefaultBreakerDebounce         = 30 * time.Second
	DefaultBreakerCoolDown         = 30 * time.Second
	DefaultProbeSuccesses          = 5
	DefaultProbeRate               = 1.0
	DefaultProbeBurst              = 5

	// Cache defaults
	DefaultCacheBackend         = "memory"
	DefaultCacheMaxEntries      = 10000
	DefaultCacheCleanupInterval = time.Minute
	DefaultRedisPrefix          = "conductor:cache:"

	// Events defaults
	DefaultEventsBackend              = "sqlite"
	DefaultEventsSQLitePath           = "data/events.db"
	DefaultEventsSQLiteMaxOpenConns   = 10
	DefaultEventsSQLiteMaxIdleConns   = 5
	DefaultEventsSQLiteBusyTimeout    = 5 * time.Second
	DefaultEventsRecorderAsyncBuffer  = 1000
	DefaultEventsRecorderWriteTimeout = 5 * time.Second
	DefaultEventsRetentionDays        = 30
	DefaultEventsRetentionSchedule    = "0 3 * * *"
	DefaultEventsRetentionArchivePath = "data/archives/"

	// Telemetry defaults
	DefaultLoggingLevel      = "info"
	DefaultLoggingFormat     = "json"
	DefaultMetricsPath       = "/metrics"
	DefaultMetricsNamespace  = "conductor"
	DefaultTracingEndpoint   = "localhost:4317"
	DefaultTracingService    = "conductor"
	DefaultTracingSampleRate = 1.0

	// Reload defaults
	DefaultReloadDebounce  = 250 * time.Millisecond
	DefaultGitBranch       = "main"
	DefaultGitPath         = "conductor.yaml"
	DefaultGitPollInterval = 30 * time.Second
	DefaultGitTimeout      = 10 * time.Second
	DefaultGitAuthType     = "none"
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	// Engine defaults - applied to each engine. Weight and Enabled stay nil
	// so an explicit zero survives.
	for i := range cfg.Engines {
		e := &cfg.Engines[i]
		if e.Timeout == 0 {
			e.Timeout = DefaultEngineTimeout
		}
		if e.HealthCheckInterval == 0 {
			e.HealthCheckInterval = DefaultEngineHealthCheckInterval
		}
	}

	// Selection defaults
	if cfg.Selection.ConsensusSize == 0 {
		cfg.Selection.ConsensusSize = DefaultConsensusSize
	}
	if cfg.Selection.ConsensusTolerance == 0 {
		cfg.Selection.ConsensusTolerance = DefaultConsensusTolerance
	}

	// Rollout defaults
	if cfg.Rollout.Salt == "" {
		cfg.Rollout.Salt = DefaultRolloutSalt
	}
	if cfg.Rollout.StatePath == "" {
		cfg.Rollout.StatePath = DefaultRolloutStatePath
	}

	applyMonitorDefaults(&cfg.Monitor)

	// Cache defaults
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = DefaultCacheBackend
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultCacheMaxEntries
	}
	if cfg.Cache.CleanupInterval == 0 {
		cfg.Cache.CleanupInterval = DefaultCacheCleanupInterval
	}
	if cfg.Cache.Redis.Prefix == "" {
		cfg.Cache.Redis.Prefix = DefaultRedisPrefix
	}

	applyEventsDefaults(&cfg.Events)

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}

	applyReloadDefaults(&cfg.Reload)
}

func applyMonitorDefaults(m *MonitorConfig) {
	if m.Window == 0 {
		m.Window = DefaultMonitorWindow
	}
	if m.Buckets == 0 {
		m.Buckets = DefaultMonitorBuckets
	}
	if m.EvaluateInterval == 0 {
		m.EvaluateInterval = DefaultMonitorEvaluateInterval
	}
	if m.ErrorRateThreshold == 0 {
		m.ErrorRateThreshold = DefaultErrorRateThreshold
	}
	if m.LatencyMargin == 0 {
		m.LatencyMargin = DefaultLatencyMargin
	}
	if m.MinSamples == 0 {
		m.MinSamples = DefaultMinSamples
	}
	if m.Debounce == 0 {
		m.Debounce = DefaultBreakerDebounce
	}
	if m.CoolDown == 0 {
		m.CoolDown = DefaultBreakerCoolDown
	}
	if m.ProbeSuccesses == 0 {
		m.ProbeSuccesses = DefaultProbeSuccesses
	}
	if m.ProbeRate == 0 {
		m.ProbeRate = DefaultProbeRate
	}
	if m.ProbeBurst == 0 {
		m.ProbeBurst = DefaultProbeBurst
	}
}

func applyEventsDefaults(e *EventsConfig) {
	if e.Backend == "" {
		e.Backend = DefaultEventsBackend
	}
	if e.SQLite.Path == "" {
		e.SQLite.Path = DefaultEventsSQLitePath
	}
	if e.SQLite.MaxOpenConns == 0 {
		e.SQLite.MaxOpenConns = DefaultEventsSQLiteMaxOpenConns
	}
	if e.SQLite.MaxIdleConns == 0 {
		e.SQLite.MaxIdleConns = DefaultEventsSQLiteMaxIdleConns
	}
	if e.SQLite.BusyTimeout == 0 {
		e.SQLite.BusyTimeout = DefaultEventsSQLiteBusyTimeout
	}
	if e.Recorder.AsyncBuffer == 0 {
		e.Recorder.AsyncBuffer = DefaultEventsRecorderAsyncBuffer
	}
	if e.Recorder.WriteTimeout == 0 {
		e.Recorder.WriteTimeout = DefaultEventsRecorderWriteTimeout
	}
	if e.Retention.Days == 0 {
		e.Retention.Days = DefaultEventsRetentionDays
	}
	if e.Retention.PruneSchedule == "" {
		e.Retention.PruneSchedule = DefaultEventsRetentionSchedule
	}
	if e.Retention.ArchivePath == "" {
		e.Retention.ArchivePath = DefaultEventsRetentionArchivePath
	}
}

func applyReloadDefaults(r *ReloadSettings) {
	if r.Debounce == 0 {
		r.Debounce = DefaultReloadDebounce
	}
	if r.Git.Branch == "" {
		r.Git.Branch = DefaultGitBranch
	}
	if r.Git.Path == "" {
		r.Git.Path = DefaultGitPath
	}
	if r.Git.LocalPath == "" {
		r.Git.LocalPath = filepath.Join(os.TempDir(), "conductor-config")
	}
	if r.Git.PollInterval == 0 {
		r.Git.PollInterval = DefaultGitPollInterval
	}
	if r.Git.Timeout == 0 {
		r.Git.Timeout = DefaultGitTimeout
	}
	if r.Git.Auth.Type == "" {
		r.Git.Auth.Type = DefaultGitAuthType
	}
}
