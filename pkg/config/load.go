package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONDUCTOR_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// Environment variables are ignored; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and applies defaults without validating. Unknown keys
// are rejected so typos surface at load time.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention CONDUCTOR_SECTION_FIELD (e.g., CONDUCTOR_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Malformed values are ignored and the file value is kept.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envDuration("SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	if val := os.Getenv(EnvPrefix + "SERVER_MAX_BODY_BYTES"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Server.MaxBodyBytes = i
		}
	}
	envString("SERVER_ADMIN_TOKEN", &cfg.Server.AdminToken)

	// Engine overrides, keyed by the configured engine id
	for i := range cfg.Engines {
		applyEngineEnvOverrides(&cfg.Engines[i])
	}

	// Legacy and rollout overrides
	envString("LEGACY_ENGINE", &cfg.Legacy.Engine)
	envFloat("ROLLOUT_PERCENTAGE", &cfg.Rollout.Percentage)
	envString("ROLLOUT_SALT", &cfg.Rollout.Salt)
	envDuration("ROLLOUT_PROPAGATION_DELAY", &cfg.Rollout.PropagationDelay)
	envString("ROLLOUT_STATE_PATH", &cfg.Rollout.StatePath)

	// Monitor overrides
	envFloat("MONITOR_ERROR_RATE_THRESHOLD", &cfg.Monitor.ErrorRateThreshold)
	envInt("MONITOR_MIN_SAMPLES", &cfg.Monitor.MinSamples)
	envDuration("MONITOR_DEBOUNCE", &cfg.Monitor.Debounce)
	envDuration("MONITOR_COOL_DOWN", &cfg.Monitor.CoolDown)

	// Cache overrides
	envString("CACHE_BACKEND", &cfg.Cache.Backend)
	envInt("CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries)
	envString("CACHE_REDIS_ADDRESS", &cfg.Cache.Redis.Address)
	envString("CACHE_REDIS_PASSWORD", &cfg.Cache.Redis.Password)
	envInt("CACHE_REDIS_DB", &cfg.Cache.Redis.DB)

	// Events overrides
	if val := os.Getenv(EnvPrefix + "EVENTS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Events.Enabled = &b
		}
	}
	envString("EVENTS_BACKEND", &cfg.Events.Backend)
	envString("EVENTS_SQLITE_PATH", &cfg.Events.SQLite.Path)
	envInt("EVENTS_RETENTION_DAYS", &cfg.Events.Retention.Days)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = &b
		}
	}
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)

	// Reload overrides
	envBool("RELOAD_WATCH", &cfg.Reload.Watch)
	envString("RELOAD_GIT_REPOSITORY", &cfg.Reload.Git.Repository)
	envString("RELOAD_GIT_AUTH_TOKEN", &cfg.Reload.Git.Auth.Token)
}

// applyEngineEnvOverrides applies CONDUCTOR_ENGINES_<ID>_<FIELD> overrides.
// The id is upper-cased and dashes become underscores.
func applyEngineEnvOverrides(e *EngineConfig) {
	prefix := "ENGINES_" + strings.ToUpper(strings.ReplaceAll(e.ID, "-", "_")) + "_"

	envString(prefix+"BASE_URL", &e.BaseURL)
	envString(prefix+"API_KEY", &e.APIKey)
	envDuration(prefix+"TIMEOUT", &e.Timeout)
	envDuration(prefix+"CACHE_TTL", &e.CacheTTL)
	if val := os.Getenv(EnvPrefix + prefix + "ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			e.Enabled = &b
		}
	}
	if val := os.Getenv(EnvPrefix + prefix + "WEIGHT"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			e.Weight = &f
		}
	}
}

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envFloat(key string, dst *float64) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}
