package selection

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoEngineAvailable is returned when no enabled engine is admitting
// traffic. It is surfaced to the caller and never retried internally.
var ErrNoEngineAvailable = errors.New("no engine available")

// NoEngineAvailableError carries the engines that were excluded.
type NoEngineAvailableError struct {
	// Excluded contains the enabled engines whose breaker refused traffic.
	Excluded []string
}

// Error implements the error interface.
func (e *NoEngineAvailableError) Error() string {
	if len(e.Excluded) == 0 {
		return "no engine available: no enabled engines"
	}
	return fmt.Sprintf("no engine available (excluded by breaker: %s)", strings.Join(e.Excluded, ", "))
}

// Is implements error matching for errors.Is().
func (e *NoEngineAvailableError) Is(target error) bool {
	return target == ErrNoEngineAvailable
}
