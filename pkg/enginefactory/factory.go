// Package enginefactory builds scoring engine clients and registry
// definitions from configuration.
package enginefactory

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"talentgrid-hq/conductor/pkg/config"
	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/registry"
)

// minHealthCheckTimeout keeps sideband probes from failing on engines with
// very tight scoring budgets.
const minHealthCheckTimeout = time.Second

// ConfigError reports an engine whose client cannot be built.
type ConfigError struct {
	Engine  string
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("engine %q: %s: %s", e.Engine, e.Field, e.Message)
}

// NewEngine creates the HTTP client for one configured engine.
//
//	eng, err := enginefactory.NewEngine(config.EngineConfig{
//	    ID:      "advanced",
//	    BaseURL: "http://advanced-scorer:9000",
//	})
func NewEngine(cfg config.EngineConfig) (*engines.HTTPEngine, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, &ConfigError{Engine: cfg.ID, Field: "base_url", Message: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ConfigError{Engine: cfg.ID, Field: "base_url", Message: fmt.Sprintf("unsupported scheme %q (supported: http, https)", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &ConfigError{Engine: cfg.ID, Field: "base_url", Message: "missing host"}
	}

	slog.Debug("creating engine client",
		"engine", cfg.ID,
		"base_url", cfg.BaseURL,
	)

	return engines.NewHTTPEngine(engines.Config{
		Name:                cfg.ID,
		BaseURL:             cfg.BaseURL,
		APIKey:              cfg.APIKey,
		HealthCheckInterval: cfg.HealthCheckInterval,
	}), nil
}

// Definition converts an engine's configuration into its registry
// definition.
func Definition(cfg config.EngineConfig) registry.Definition {
	return registry.Definition{
		ID:               cfg.ID,
		Enabled:          cfg.IsEnabled(),
		Weight:           cfg.WeightValue(),
		Timeout:          cfg.Timeout,
		CacheTTL:         cfg.CacheTTL,
		MinSkills:        cfg.MinSkills,
		MinQuestionnaire: cfg.MinQuestionnaire,
		Fallbacks:        append([]string(nil), cfg.Fallbacks...),
		Baseline:         cfg.Baseline,
	}
}

// Definitions converts every configured engine.
func Definitions(cfgs []config.EngineConfig) []registry.Definition {
	defs := make([]registry.Definition, len(cfgs))
	for i, c := range cfgs {
		defs[i] = Definition(c)
	}
	return defs
}

// healthCheckTimeout is the probe budget for an engine.
func healthCheckTimeout(cfg config.EngineConfig) time.Duration {
	if cfg.Timeout < minHealthCheckTimeout {
		return minHealthCheckTimeout
	}
	return cfg.Timeout
}
