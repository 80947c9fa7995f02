// Package health serves liveness and readiness probes.
//
// Liveness only proves the process answers. Readiness runs every registered
// check concurrently under a per-check timeout and reports 503 when any fails:
//
//	checker := health.New(2 * time.Second)
//	checker.Register("engines", health.EnabledEngines(func() int { return len(reg.ListEnabled()) }))
//	checker.Register("events", health.Ping(store))
//	mux.HandleFunc("/health/live", checker.LiveHandler())
//	mux.HandleFunc("/health/ready", checker.ReadyHandler())
package health
