// Package metrics exposes Conductor's Prometheus metrics.
//
// A Collector is handed to the components as an observer: the executor
// reports attempts, the orchestrator reports served requests, the monitor
// reports breaker transitions and the router reports rollout changes.
// Metrics are registered on a dedicated registry and served by Handler.
package metrics
