// Package telemetry groups Conductor's observability packages.
//
//   - logging: slog setup with request correlation and PII redaction
//   - metrics: Prometheus collector fed by component observers
//   - tracing: OpenTelemetry OTLP export and W3C propagation
//   - health: liveness and readiness probes
package telemetry
