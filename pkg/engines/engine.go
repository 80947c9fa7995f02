package engines

import "context"

// Engine is the capability shared by every scoring backend. The orchestrator
// treats all engines the same way regardless of their internal algorithm.
//
// Score must respect context cancellation and return as soon as the context
// is done. The caller derives the context deadline from the engine's declared
// timeout budget.
type Engine interface {
	// Score scores the candidate against the request's jobs.
	Score(ctx context.Context, req *MatchRequest) (*Score, error)

	// HealthCheck performs a lightweight sideband reachability check.
	HealthCheck(ctx context.Context) error

	// Name returns the engine identifier, matching its registry descriptor id.
	Name() string

	// Close releases any resources held by the engine client.
	Close() error
}

// Set maps engine ids to engine clients.
type Set map[string]Engine

// Get returns the engine with the given id.
func (s Set) Get(id string) (Engine, bool) {
	e, ok := s[id]
	return e, ok
}

// Close closes every engine in the set and returns the first error.
func (s Set) Close() error {
	var first error
	for _, e := range s {
		if err := e.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
