package engines

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common engine errors that can be checked with errors.Is().
var (
	// ErrTimeout is returned when an engine call exceeds its time budget.
	ErrTimeout = errors.New("engine timeout")

	// ErrEngine is returned when an engine call fails explicitly.
	ErrEngine = errors.New("engine error")
)

// Failure kinds used in logs, metrics, and health windows.
const (
	KindTimeout = "timeout"
	KindError   = "error"
)

// TimeoutError is returned when an engine does not answer within its budget.
type TimeoutError struct {
	// Engine is the id of the engine that timed out
	Engine string

	// Timeout is the budget that was exceeded
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("engine %q timed out after %s", e.Engine, e.Timeout)
}

// Is implements error matching for errors.Is().
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// EngineError represents an explicit engine failure.
type EngineError struct {
	// Engine is the id of the engine that failed
	Engine string

	// StatusCode is the HTTP status code (0 if not applicable)
	StatusCode int

	// Message is the error message
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("engine %q error (status %d): %s", e.Engine, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("engine %q error: %s", e.Engine, e.Message)
}

// Is implements error matching for errors.Is().
func (e *EngineError) Is(target error) bool {
	return target == ErrEngine
}

// Unwrap returns the underlying error for error chain support.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Normalize converts an arbitrary engine call error into a TimeoutError or an
// EngineError. A deadline on the attempt context turns into a TimeoutError even
// when the engine wrapped it in something else.
func Normalize(ctx context.Context, engine string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		if te.Timeout == 0 {
			return &TimeoutError{Engine: engine, Timeout: timeout}
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || (ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return &TimeoutError{Engine: engine, Timeout: timeout}
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}
	return &EngineError{Engine: engine, Message: err.Error(), Cause: err}
}

// Kind returns KindTimeout for timeouts and KindError for everything else.
func Kind(err error) string {
	if errors.Is(err, ErrTimeout) {
		return KindTimeout
	}
	return KindError
}
