// Package server is Conductor's HTTP front end.
//
// Routes:
//
//	POST   /v1/match        score a candidate against one or more jobs
//	PUT    /admin/rollout   set the orchestrator percentage
//	POST   /admin/fallback  force all traffic to the legacy engine
//	DELETE /admin/fallback  lift the legacy override
//	GET    /admin/status    rollout stages and engine health
//	GET    /health/live     liveness probe
//	GET    /health/ready    readiness probe
//	GET    /metrics         Prometheus exposition
//
// Match failures use a single envelope, {"error": {"code", "message",
// "attempts"}}, with 400 for invalid requests, 503 when no engine can be
// selected and 502 when every attempted engine failed. Admin routes require
// the configured bearer token.
package server
