package config

import "time"

// Config is the root configuration structure for Conductor.
// It contains all configuration sections for the HTTP server, the engine
// catalogue, selection, health monitoring, rollout, caching, the event
// store and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address
	// and timeouts.
	Server ServerConfig `yaml:"server"`

	// Engines is the engine catalogue. Order is not significant.
	Engines []EngineConfig `yaml:"engines"`

	// Selection contains the rule-table thresholds that are not part of
	// engine descriptors.
	Selection SelectionConfig `yaml:"selection"`

	// Legacy configures the legacy single-engine path.
	Legacy LegacyConfig `yaml:"legacy"`

	// Rollout configures traffic shifting between the legacy path and the
	// orchestrator path.
	Rollout RolloutConfig `yaml:"rollout"`

	// Monitor configures health windows and circuit breakers.
	Monitor MonitorConfig `yaml:"monitor"`

	// Cache configures the result cache.
	Cache CacheConfig `yaml:"cache"`

	// Events configures the observability event store.
	Events EventsConfig `yaml:"events"`

	// Telemetry contains configuration for logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Reload configures live configuration reload.
	Reload ReloadSettings `yaml:"reload"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request on a
	// keep-alive connection.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is how long to wait for in-flight requests on shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout bounds a whole match request, all engine attempts
	// included.
	// Default: 2s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxBodyBytes limits the size of a match request body.
	// Default: 1MB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// AdminToken, when set, is required as a bearer token on /admin routes.
	AdminToken string `yaml:"admin_token"`
}

// EngineConfig describes one scoring engine.
type EngineConfig struct {
	// ID is the unique engine identifier (e.g., "baseline", "advanced").
	ID string `yaml:"id"`

	// BaseURL is the engine's HTTP endpoint. Scores are posted to
	// <base_url>/score and health is read from <base_url>/health.
	BaseURL string `yaml:"base_url"`

	// APIKey is an optional bearer token sent to the engine.
	APIKey string `yaml:"api_key"`

	// Enabled is the initial enabled flag.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Weight is the relative weight for consensus averaging and ordering.
	// Default: 1.0
	Weight *float64 `yaml:"weight"`

	// Timeout is the per-call latency budget.
	// Default: 200ms
	Timeout time.Duration `yaml:"timeout"`

	// CacheTTL is how long successful results stay cached. 0 disables
	// caching for this engine.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// MinSkills is the minimum distinct candidate skill count (inclusive).
	MinSkills int `yaml:"min_skills"`

	// MinQuestionnaire is the minimum questionnaire completion in [0, 1]
	// (inclusive).
	MinQuestionnaire float64 `yaml:"min_questionnaire"`

	// Fallbacks is the ordered list of engines tried after this one.
	Fallbacks []string `yaml:"fallbacks"`

	// Baseline marks the engine used when no more specific rule matches.
	Baseline bool `yaml:"baseline"`

	// HealthCheckInterval is the sideband health-check period. 0 disables
	// sideband checks.
	// Default: 15s
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// IsEnabled reports the configured enabled flag, defaulting to true.
func (e *EngineConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// WeightValue reports the configured weight, defaulting to
// DefaultEngineWeight.
func (e *EngineConfig) WeightValue() float64 {
	if e.Weight == nil {
		return DefaultEngineWeight
	}
	return *e.Weight
}

// SelectionConfig configures the selection rule table.
type SelectionConfig struct {
	// CriticalPositions lists job-title fragments (case-insensitive) that
	// trigger hybrid consensus.
	CriticalPositions []string `yaml:"critical_positions"`

	// ConsensusSize is the number of engines invoked in hybrid mode.
	// Default: 2
	ConsensusSize int `yaml:"consensus_size"`

	// ConsensusTolerance is the maximum score spread considered agreement.
	// Default: 10
	ConsensusTolerance float64 `yaml:"consensus_tolerance"`
}

// LegacyConfig configures the legacy path.
type LegacyConfig struct {
	// Engine is the id of the engine serving the legacy path. It must be a
	// configured engine and is usually disabled so selection never picks it.
	// Empty means every request takes the orchestrator path.
	Engine string `yaml:"engine"`
}

// RolloutConfig configures traffic shifting.
type RolloutConfig struct {
	// Percentage is the share of traffic (0-100) served by the orchestrator.
	// Default: 0
	Percentage float64 `yaml:"percentage"`

	// Segments overrides the percentage per user segment.
	Segments map[string]float64 `yaml:"segments"`

	// Allow lists segments always routed to the orchestrator.
	Allow []string `yaml:"allow"`

	// Deny lists segments always routed to the legacy path.
	Deny []string `yaml:"deny"`

	// Salt namespaces the sticky routing hash.
	// Default: "conductor"
	Salt string `yaml:"salt"`

	// PropagationDelay is how long an operator change waits before
	// applying.
	// Default: 0 (immediate)
	PropagationDelay time.Duration `yaml:"propagation_delay"`

	// StatePath is the SQLite database persisting rollout stages. Empty keeps
	// stages in memory only.
	// Default: "data/rollout.db"
	StatePath string `yaml:"state_path"`
}

// MonitorConfig configures health windows and breakers.
type MonitorConfig struct {
	// Window is the rolling window length.
	// Default: 5m
	Window time.Duration `yaml:"window"`

	// Buckets is the number of buckets per window.
	// Default: 10
	Buckets int `yaml:"buckets"`

	// EvaluateInterval is how often breaker thresholds are evaluated.
	// Default: 1s
	EvaluateInterval time.Duration `yaml:"evaluate_interval"`

	// ErrorRateThreshold opens a breaker when exceeded.
	// Default: 0.5
	ErrorRateThreshold float64 `yaml:"error_rate_threshold"`

	// LatencyMargin opens a breaker when p95 exceeds timeout*(1+margin).
	// Default: 0.25
	LatencyMargin float64 `yaml:"latency_margin"`

	// MinSamples is the minimum number of live attempts before thresholds
	// apply.
	// Default: 10
	MinSamples int `yaml:"min_samples"`

	// Debounce is how long a breach must persist before opening.
	// Default: 30s
	Debounce time.Duration `yaml:"debounce"`

	// CoolDown is how long a breaker stays open before probing.
	// Default: 30s
	CoolDown time.Duration `yaml:"cool_down"`

	// ProbeSuccesses is the number of consecutive probe successes that
	// close a half-open breaker.
	// Default: 5
	ProbeSuccesses int `yaml:"probe_successes"`

	// ProbeRate limits half-open probe admissions per second.
	// Default: 1
	ProbeRate float64 `yaml:"probe_rate"`

	// ProbeBurst is the probe limiter burst.
	// Default: 5
	ProbeBurst int `yaml:"probe_burst"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	// Backend is "memory", "redis" or "none".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// MaxEntries bounds the in-memory cache.
	// Default: 10000
	MaxEntries int `yaml:"max_entries"`

	// CleanupInterval is how often expired in-memory entries are removed.
	// Default: 1m
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// Redis configures the Redis backend.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	// Address is the Redis server address (host:port).
	Address string `yaml:"address"`

	// Password is the optional Redis password.
	Password string `yaml:"password"`

	// DB is the Redis database number.
	DB int `yaml:"db"`

	// Prefix is prepended to every key.
	// Default: "conductor:cache:"
	Prefix string `yaml:"prefix"`
}

// EventsConfig configures the observability event store.
type EventsConfig struct {
	// Enabled enables event recording.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Backend is "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the SQLite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Recorder configures the async recorder.
	Recorder RecorderConfig `yaml:"recorder"`

	// Retention configures pruning.
	Retention RetentionConfig `yaml:"retention"`
}

// IsEnabled reports the configured enabled flag, defaulting to true.
func (e *EventsConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// SQLiteConfig configures the SQLite event store.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/events.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RecorderConfig configures the async event recorder.
type RecorderConfig struct {
	// AsyncBuffer is the event channel capacity. Events are dropped when it
	// is full.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds a single event write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RecordAttempts records one event per engine attempt.
	// Default: true
	RecordAttempts *bool `yaml:"record_attempts"`
}

// RetentionConfig configures event pruning.
type RetentionConfig struct {
	// Days is the number of days to keep events. 0 keeps them forever.
	// Default: 30
	Days int `yaml:"days"`

	// PruneSchedule is a cron expression. Empty disables pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`

	// ArchiveBeforeDelete exports pruned events to JSON first.
	ArchiveBeforeDelete bool `yaml:"archive_before_delete"`

	// ArchivePath is the archive directory.
	// Default: "data/archives/"
	ArchivePath string `yaml:"archive_path"`

	// MaxEvents caps the number of stored events. 0 means unlimited.
	MaxEvents int64 `yaml:"max_events"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing configures OpenTelemetry tracing.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes the source file and line in log records.
	AddSource bool `yaml:"add_source"`

	// RedactPII masks candidate contact details and credentials in log
	// values.
	// Default: true
	RedactPII *bool `yaml:"redact_pii"`
}

// RedactPIIEnabled reports the configured redaction flag, defaulting to true.
func (l *LoggingConfig) RedactPIIEnabled() bool {
	return l.RedactPII == nil || *l.RedactPII
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled exposes metrics.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path metrics are served on.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "conductor"
	Namespace string `yaml:"namespace"`
}

// IsEnabled reports the configured enabled flag, defaulting to true.
func (m *MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns on trace export.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// ServiceName is the reported service name.
	// Default: "conductor"
	ServiceName string `yaml:"service_name"`

	// SampleRate is the ratio of traces sampled in [0, 1].
	// Default: 1.0
	SampleRate *float64 `yaml:"sample_rate"`
}

// SampleRateValue reports the configured sample rate, defaulting to
// DefaultTracingSampleRate.
func (t *TracingConfig) SampleRateValue() float64 {
	if t.SampleRate == nil {
		return DefaultTracingSampleRate
	}
	return *t.SampleRate
}

// ReloadSettings configures live configuration reload.
type ReloadSettings struct {
	// Watch reloads the configuration file when it changes on disk.
	Watch bool `yaml:"watch"`

	// Debounce is the quiet period before a file change triggers a reload.
	// Default: 250ms
	Debounce time.Duration `yaml:"debounce"`

	// Git configures a Git-backed configuration source.
	Git GitConfig `yaml:"git"`
}

// GitConfig configures the Git-backed configuration source.
type GitConfig struct {
	// Enabled turns on Git polling.
	Enabled bool `yaml:"enabled"`

	// Repository is the repository URL (HTTPS or SSH).
	Repository string `yaml:"repository"`

	// Branch is the branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path is the configuration file path within the repository.
	// Default: "conductor.yaml"
	Path string `yaml:"path"`

	// LocalPath is the local clone directory.
	// Default: "<tmp>/conductor-config"
	LocalPath string `yaml:"local_path"`

	// PollInterval is how often the remote is polled.
	// Default: 30s
	PollInterval time.Duration `yaml:"poll_interval"`

	// Timeout bounds clone and pull operations.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Auth configures Git authentication.
	Auth GitAuthConfig `yaml:"auth"`
}

// GitAuthConfig configures Git authentication.
type GitAuthConfig struct {
	// Type is "none", "token" or "ssh".
	// Default: "none"
	Type string `yaml:"type"`

	// Token is the HTTPS access token (required for "token").
	Token string `yaml:"token"`

	// SSHKeyPath is the private key path (required for "ssh").
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase is the optional key passphrase.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}
