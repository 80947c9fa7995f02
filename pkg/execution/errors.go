package execution

import (
	"errors"
	"fmt"
	"strings"

	"talentgrid-hq/conductor/pkg/engines"
)

// ErrAllEnginesFailed is returned when every attempted engine failed.
var ErrAllEnginesFailed = errors.New("all engines failed")

// AttemptError is the last error observed for one engine.
type AttemptError struct {
	// Engine is the engine id
	Engine string `json:"engine"`

	// Kind is "timeout" or "error"
	Kind string `json:"kind"`

	// Err is the underlying error
	Err error `json:"-"`
}

// Message returns the error text.
func (a AttemptError) Message() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}

// AllEnginesFailedError carries enough structure to diagnose a failed request
// without re-running it: every attempted engine with its last error.
type AllEnginesFailedError struct {
	// RequestID is the correlation id
	RequestID string

	// Attempts lists each attempted engine in order
	Attempts []AttemptError
}

// Error implements the error interface.
func (e *AllEnginesFailedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s (%s): %s", a.Engine, a.Kind, a.Message())
	}
	return fmt.Sprintf("all engines failed for request %s: %s", e.RequestID, strings.Join(parts, "; "))
}

// Is implements error matching for errors.Is().
func (e *AllEnginesFailedError) Is(target error) bool {
	return target == ErrAllEnginesFailed
}

// Engines returns the attempted engine ids in order.
func (e *AllEnginesFailedError) Engines() []string {
	ids := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		ids[i] = a.Engine
	}
	return ids
}

// abandoned wraps the request context's error once it ends a request before
// any engine produced a score.
func abandoned(requestID string, err error) error {
	return fmt.Errorf("request %s abandoned: %w", requestID, err)
}

func newAllEnginesFailed(requestID string, attempts []Outcome) *AllEnginesFailedError {
	e := &AllEnginesFailedError{RequestID: requestID}
	for _, o := range attempts {
		e.Attempts = append(e.Attempts, AttemptError{
			Engine: o.Engine,
			Kind:   engines.Kind(o.Err),
			Err:    o.Err,
		})
	}
	return e
}
