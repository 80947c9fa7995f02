package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"talentgrid-hq/conductor/pkg/execution"
	"talentgrid-hq/conductor/pkg/selection"
)

// ErrInvalidRequest is returned for requests that fail validation.
var ErrInvalidRequest = errors.New("invalid match request")

// InvalidRequestError reports the first invalid field of a request.
type InvalidRequestError struct {
	// Field is the offending JSON field path
	Field string

	// Message describes the problem
	Message string
}

// Error implements the error interface.
func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid match request: %s: %s", e.Field, e.Message)
}

// Is implements error matching for errors.Is().
func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// Failure codes reported to clients and metrics.
const (
	CodeInvalidRequest    = "InvalidRequest"
	CodeNoEngineAvailable = "NoEngineAvailable"
	CodeAllEnginesFailed  = "AllEnginesFailed"
	CodeCanceled          = "Canceled"
	CodeInternal          = "Internal"
)

// ErrorCode classifies a Match failure.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, selection.ErrNoEngineAvailable):
		return CodeNoEngineAvailable
	case errors.Is(err, execution.ErrAllEnginesFailed):
		return CodeAllEnginesFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	default:
		return CodeInternal
	}
}
