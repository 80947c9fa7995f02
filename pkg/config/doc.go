// Package config provides configuration management for Conductor.
//
// This package handles loading, validating, and reloading configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("conductor.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("conductor.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CONDUCTOR_SECTION_FIELD.
// For example:
//
//   - CONDUCTOR_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - CONDUCTOR_ENGINES_ADVANCED_TIMEOUT overrides the timeout of engine "advanced"
//   - CONDUCTOR_ROLLOUT_PERCENTAGE overrides rollout.percentage
//
// # Live Reload
//
// FileWatcher reloads the file when it changes; gitsource polls a Git
// repository and writes the file it tracks. Both end in ReloadConfig, which
// swaps the singleton and calls every hook registered with OnReload. Engine
// weights, enabled flags, selection thresholds, breaker thresholds and
// rollout rules take effect without a restart. Listen address, engine
// endpoints and storage backends need one.
//
// # Example Configuration
//
//	engines:
//	  - id: baseline
//	    base_url: "http://baseline:9000"
//	    baseline: true
//	    weight: 0.3
//	  - id: advanced
//	    base_url: "http://advanced:9000"
//	    weight: 0.8
//	    timeout: 80ms
//	    min_skills: 5
//	    min_questionnaire: 0.5
//	    fallbacks: [baseline]
//
//	selection:
//	  critical_positions: ["chief", "head of"]
//
//	rollout:
//	  percentage: 10
package config
