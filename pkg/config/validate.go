package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateEngines(cfg.Engines)...)
	errs = append(errs, validateSelection(&cfg.Selection)...)
	errs = append(errs, validateLegacy(cfg)...)
	errs = append(errs, validateRollout(&cfg.Rollout)...)
	errs = append(errs, validateMonitor(&cfg.Monitor)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateEvents(&cfg.Events)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateReload(&cfg.Reload)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: fmt.Sprintf("invalid address format: %v", err)})
	}

	for _, d := range []struct {
		field string
		value time.Duration
	}{
		{"server.read_timeout", cfg.ReadTimeout},
		{"server.write_timeout", cfg.WriteTimeout},
		{"server.idle_timeout", cfg.IdleTimeout},
		{"server.shutdown_timeout", cfg.ShutdownTimeout},
		{"server.request_timeout", cfg.RequestTimeout},
	} {
		if d.value <= 0 {
			errs = append(errs, FieldError{Field: d.field, Message: "must be positive"})
		}
	}

	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "must be positive"})
	}

	return errs
}

// validateEngines checks each descriptor and the cross-engine references.
// The registry repeats the structural checks at load time; doing them here
// reports every problem at once.
func validateEngines(list []EngineConfig) []FieldError {
	var errs []FieldError

	if len(list) == 0 {
		return []FieldError{{Field: "engines", Message: "at least one engine must be configured"}}
	}

	ids := make(map[string]bool, len(list))
	var baselines []string
	for i, e := range list {
		prefix := fmt.Sprintf("engines[%d]", i)
		if e.ID == "" {
			errs = append(errs, FieldError{Field: prefix + ".id", Message: "id is required"})
		} else {
			prefix = fmt.Sprintf("engines.%s", e.ID)
			if ids[e.ID] {
				errs = append(errs, FieldError{Field: prefix + ".id", Message: "duplicate engine id"})
			}
			ids[e.ID] = true
		}

		if e.BaseURL == "" {
			errs = append(errs, FieldError{Field: prefix + ".base_url", Message: "base URL is required"})
		} else if u, err := url.Parse(e.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{Field: prefix + ".base_url", Message: "must be an absolute URL"})
		}
		if e.WeightValue() < 0 {
			errs = append(errs, FieldError{Field: prefix + ".weight", Message: "must not be negative"})
		}
		if e.Timeout <= 0 {
			errs = append(errs, FieldError{Field: prefix + ".timeout", Message: "must be positive"})
		}
		if e.CacheTTL < 0 {
			errs = append(errs, FieldError{Field: prefix + ".cache_ttl", Message: "must not be negative"})
		}
		if e.MinSkills < 0 {
			errs = append(errs, FieldError{Field: prefix + ".min_skills", Message: "must not be negative"})
		}
		if e.MinQuestionnaire < 0 || e.MinQuestionnaire > 1 {
			errs = append(errs, FieldError{Field: prefix + ".min_questionnaire", Message: "must be between 0 and 1"})
		}
		if e.HealthCheckInterval < 0 {
			errs = append(errs, FieldError{Field: prefix + ".health_check_interval", Message: "must not be negative"})
		}
		if e.Baseline {
			baselines = append(baselines, e.ID)
		}
	}

	for _, e := range list {
		seen := make(map[string]bool, len(e.Fallbacks))
		for _, fb := range e.Fallbacks {
			field := fmt.Sprintf("engines.%s.fallbacks", e.ID)
			switch {
			case fb == e.ID:
				errs = append(errs, FieldError{Field: field, Message: "engine cannot fall back to itself"})
			case !ids[fb]:
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("fallback target %q is not configured", fb)})
			case seen[fb]:
				errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("duplicate fallback %q", fb)})
			}
			seen[fb] = true
		}
	}

	if len(baselines) > 1 {
		errs = append(errs, FieldError{Field: "engines", Message: fmt.Sprintf("only one engine may be marked baseline, got %v", baselines)})
	}

	return errs
}

func validateSelection(cfg *SelectionConfig) []FieldError {
	var errs []FieldError

	if cfg.ConsensusSize < 2 {
		errs = append(errs, FieldError{Field: "selection.consensus_size", Message: "must be at least 2"})
	}
	if cfg.ConsensusTolerance < 0 {
		errs = append(errs, FieldError{Field: "selection.consensus_tolerance", Message: "must not be negative"})
	}
	for i, p := range cfg.CriticalPositions {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("selection.critical_positions[%d]", i), Message: "must not be empty"})
		}
	}

	return errs
}

func validateLegacy(cfg *Config) []FieldError {
	if cfg.Legacy.Engine == "" {
		return nil
	}
	for _, e := range cfg.Engines {
		if e.ID == cfg.Legacy.Engine {
			return nil
		}
	}
	return []FieldError{{Field: "legacy.engine", Message: fmt.Sprintf("engine %q is not configured", cfg.Legacy.Engine)}}
}

func validateRollout(cfg *RolloutConfig) []FieldError {
	var errs []FieldError

	if cfg.Percentage < 0 || cfg.Percentage > 100 {
		errs = append(errs, FieldError{Field: "rollout.percentage", Message: "must be between 0 and 100"})
	}
	for name, p := range cfg.Segments {
		if p < 0 || p > 100 {
			errs = append(errs, FieldError{Field: "rollout.segments." + name, Message: "must be between 0 and 100"})
		}
	}
	deny := make(map[string]bool, len(cfg.Deny))
	for _, s := range cfg.Deny {
		deny[s] = true
	}
	for _, s := range cfg.Allow {
		if deny[s] {
			errs = append(errs, FieldError{Field: "rollout.allow", Message: fmt.Sprintf("segment %q is also denied", s)})
		}
	}
	if cfg.PropagationDelay < 0 {
		errs = append(errs, FieldError{Field: "rollout.propagation_delay", Message: "must not be negative"})
	}

	return errs
}

func validateMonitor(cfg *MonitorConfig) []FieldError {
	var errs []FieldError

	if cfg.Window <= 0 {
		errs = append(errs, FieldError{Field: "monitor.window", Message: "must be positive"})
	}
	if cfg.Buckets <= 0 {
		errs = append(errs, FieldError{Field: "monitor.buckets", Message: "must be positive"})
	}
	if cfg.EvaluateInterval <= 0 {
		errs = append(errs, FieldError{Field: "monitor.evaluate_interval", Message: "must be positive"})
	}
	if cfg.ErrorRateThreshold <= 0 || cfg.ErrorRateThreshold > 1 {
		errs = append(errs, FieldError{Field: "monitor.error_rate_threshold", Message: "must be in (0, 1]"})
	}
	if cfg.LatencyMargin < 0 {
		errs = append(errs, FieldError{Field: "monitor.latency_margin", Message: "must not be negative"})
	}
	if cfg.MinSamples < 1 {
		errs = append(errs, FieldError{Field: "monitor.min_samples", Message: "must be at least 1"})
	}
	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{Field: "monitor.debounce", Message: "must not be negative"})
	}
	if cfg.CoolDown <= 0 {
		errs = append(errs, FieldError{Field: "monitor.cool_down", Message: "must be positive"})
	}
	if cfg.ProbeSuccesses < 1 {
		errs = append(errs, FieldError{Field: "monitor.probe_successes", Message: "must be at least 1"})
	}
	if cfg.ProbeRate <= 0 {
		errs = append(errs, FieldError{Field: "monitor.probe_rate", Message: "must be positive"})
	}
	if cfg.ProbeBurst < 1 {
		errs = append(errs, FieldError{Field: "monitor.probe_burst", Message: "must be at least 1"})
	}

	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
		if cfg.MaxEntries <= 0 {
			errs = append(errs, FieldError{Field: "cache.max_entries", Message: "must be positive"})
		}
	case "redis":
		if cfg.Redis.Address == "" {
			errs = append(errs, FieldError{Field: "cache.redis.address", Message: "address is required for redis backend"})
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, FieldError{Field: "cache.redis.db", Message: "must not be negative"})
		}
	case "none":
	default:
		errs = append(errs, FieldError{Field: "cache.backend", Message: fmt.Sprintf("must be one of: memory, redis, none (got %q)", cfg.Backend)})
	}

	return errs
}

func validateEvents(cfg *EventsConfig) []FieldError {
	var errs []FieldError

	if !cfg.IsEnabled() {
		return nil
	}

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "events.sqlite.path", Message: "path is required for sqlite backend"})
		}
		if cfg.SQLite.MaxOpenConns <= 0 {
			errs = append(errs, FieldError{Field: "events.sqlite.max_open_conns", Message: "must be positive"})
		}
		if cfg.SQLite.MaxIdleConns < 0 {
			errs = append(errs, FieldError{Field: "events.sqlite.max_idle_conns", Message: "must not be negative"})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{Field: "events.backend", Message: fmt.Sprintf("must be one of: sqlite, memory (got %q)", cfg.Backend)})
	}

	if cfg.Recorder.AsyncBuffer <= 0 {
		errs = append(errs, FieldError{Field: "events.recorder.async_buffer", Message: "must be positive"})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{Field: "events.retention.days", Message: "must not be negative"})
	}
	if cfg.Retention.MaxEvents < 0 {
		errs = append(errs, FieldError{Field: "events.retention.max_events", Message: "must not be negative"})
	}
	if cfg.Retention.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
			errs = append(errs, FieldError{Field: "events.retention.prune_schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
		}
	}
	if cfg.Retention.ArchiveBeforeDelete && cfg.Retention.ArchivePath == "" {
		errs = append(errs, FieldError{Field: "events.retention.archive_path", Message: "archive path is required when archiving"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level)})
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: fmt.Sprintf("must be one of: json, text (got %q)", cfg.Logging.Format)})
	}

	if cfg.Metrics.IsEnabled() && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
		}
		if r := cfg.Tracing.SampleRateValue(); r < 0 || r > 1 {
			errs = append(errs, FieldError{Field: "telemetry.tracing.sample_rate", Message: "must be between 0 and 1"})
		}
	}

	return errs
}

func validateReload(cfg *ReloadSettings) []FieldError {
	var errs []FieldError

	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{Field: "reload.debounce", Message: "must not be negative"})
	}

	git := &cfg.Git
	if !git.Enabled {
		return errs
	}
	if git.Repository == "" {
		errs = append(errs, FieldError{Field: "reload.git.repository", Message: "repository is required when git reload is enabled"})
	}
	if git.PollInterval < time.Second {
		errs = append(errs, FieldError{Field: "reload.git.poll_interval", Message: "must be at least 1s"})
	}
	switch git.Auth.Type {
	case "none":
	case "token":
		if git.Auth.Token == "" {
			errs = append(errs, FieldError{Field: "reload.git.auth.token", Message: "token is required for token auth"})
		}
	case "ssh":
		if git.Auth.SSHKeyPath == "" {
			errs = append(errs, FieldError{Field: "reload.git.auth.ssh_key_path", Message: "key path is required for ssh auth"})
		}
	default:
		errs = append(errs, FieldError{Field: "reload.git.auth.type", Message: fmt.Sprintf("must be one of: none, token, ssh (got %q)", git.Auth.Type)})
	}

	return errs
}
