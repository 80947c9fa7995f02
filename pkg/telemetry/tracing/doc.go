// Package tracing sets up OpenTelemetry tracing.
//
// New installs an OTLP gRPC exporter with a parent-based ratio sampler and
// the W3C trace context propagator. Components obtain tracers with
// otel.Tracer and tag spans with the Attr* keys defined here. HTTPMiddleware
// continues traces started by callers, and Inject forwards them to the
// scoring engines.
//
//	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing, version)
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(context.Background())
package tracing
