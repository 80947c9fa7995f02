// Package logging configures structured logging with log/slog.
//
// New builds a JSON or text logger whose records pick up request_id, engine,
// trace_id and span_id from the context passed to the *Context methods:
//
//	logger, err := logging.Install(logging.Config{Level: "info", Format: "json", RedactPII: true})
//	ctx = logging.WithRequestID(ctx, "req-123")
//	slog.InfoContext(ctx, "match served", "engine_used", "advanced")
//
// With RedactPII, email addresses, phone numbers and bearer tokens are masked
// in string values, and attributes named like credentials or contact fields
// are replaced entirely.
package logging
