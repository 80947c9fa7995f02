// Package engines defines the capability shared by all scoring engines and the
// request/response types exchanged with them.
//
// # Overview
//
// Every scoring backend, whatever its internal algorithm (keyword overlap,
// taxonomy lookup, embeddings), is reached through the Engine interface. The
// orchestrator never depends on how an engine computes its score, only on the
// shape of the call:
//
//	score, err := engine.Score(ctx, req)
//
// The context deadline is the engine's declared timeout budget. Implementations
// must return promptly once the context is done.
//
// # Errors
//
// Engine calls fail with one of two soft error kinds:
//
//   - TimeoutError: the engine did not answer within its budget (slow but alive)
//   - EngineError: the engine answered with an error or the transport failed
//
// Both satisfy errors.Is against ErrTimeout and ErrEngine respectively. Use
// Normalize to map arbitrary call errors onto this taxonomy and Kind to get the
// label used in logs and metrics.
//
// # HTTP engines
//
// HTTPEngine talks to a remote scoring service:
//
//	e := engines.NewHTTPEngine(engines.Config{
//	    Name:    "advanced",
//	    BaseURL: "http://advanced-scorer:8000",
//	})
//	e.StartHealthChecker(ctx, 2*time.Second, monitor.RecordHealthCheck)
package engines
