package tracing

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys shared by the request path.
const (
	AttrRequestID   = attribute.Key("conductor.request_id")
	AttrPath        = attribute.Key("conductor.path")
	AttrRouteReason = attribute.Key("conductor.route_reason")
	AttrMode        = attribute.Key("conductor.mode")
	AttrDecision    = attribute.Key("conductor.decision")
	AttrEngine      = attribute.Key("conductor.engine")
	AttrEngineUsed  = attribute.Key("conductor.engine_used")
	AttrReason      = attribute.Key("conductor.reason")
	AttrStatus      = attribute.Key("conductor.status")
	AttrScore       = attribute.Key("conductor.score")
	AttrCacheHit    = attribute.Key("conductor.cache_hit")
	AttrTried       = attribute.Key("conductor.tried")
	AttrTimeoutMs   = attribute.Key("conductor.timeout_ms")

	AttrHTTPMethod = attribute.Key("http.method")
	AttrHTTPRoute  = attribute.Key("http.route")
)
