package registry

import (
	"errors"
	"fmt"
)

// Common registry errors that can be checked with errors.Is().
var (
	// ErrNotFound is returned when an engine id is unknown or disabled.
	ErrNotFound = errors.New("engine not found")

	// ErrConfigInvalid is returned when a descriptor set is inconsistent.
	// It is fatal at load time.
	ErrConfigInvalid = errors.New("invalid engine configuration")
)

// NotFoundError is returned by Resolve when an engine is absent or disabled.
type NotFoundError struct {
	// ID is the requested engine id.
	ID string

	// Disabled is true when the engine exists but is currently disabled.
	Disabled bool
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Disabled {
		return fmt.Sprintf("engine %q is disabled", e.ID)
	}
	return fmt.Sprintf("engine %q not registered", e.ID)
}

// Is implements error matching for errors.Is().
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConfigError describes a single descriptor problem found at registration or
// validation time.
type ConfigError struct {
	// ID is the offending engine id (may be empty).
	ID string

	// Field is the descriptor field at fault.
	Field string

	// Reason explains the problem.
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("engine registry: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("engine %q: %s: %s", e.ID, e.Field, e.Reason)
}

// Is implements error matching for errors.Is().
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfigInvalid
}
