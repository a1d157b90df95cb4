// Package errors defines the structured error taxonomy for the event
// pipeline. Codes map onto the four documented failure classes:
// unparseable input, transient dependency failure, integrity errors,
// and bridge hand-off failures.
package errors

import (
	"fmt"
)

// ErrorCode represents a specific error type.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates an invalid or undecodable payload.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeServiceUnavailable indicates a transient dependency failure.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeIntegrity indicates an internal invariant violation.
	ErrCodeIntegrity ErrorCode = "INTEGRITY"
	// ErrCodeHandoffTimeout indicates the listener gave up waiting on the loop.
	ErrCodeHandoffTimeout ErrorCode = "HANDOFF_TIMEOUT"
	// ErrCodeQueueFull indicates the dispatch queue rejected an event.
	ErrCodeQueueFull ErrorCode = "QUEUE_FULL"
	// ErrCodeRateLimitExceeded indicates the per-user limiter rejected a message.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
)

// PipelineError is a structured error carrying a code for logging and
// HTTP status mapping. User-facing text never includes the code.
type PipelineError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *PipelineError {
	return &PipelineError{Code: ErrCodeInvalidArgument, Message: msg}
}

// ServiceUnavailable creates a transient dependency error.
func ServiceUnavailable(msg string, cause error) *PipelineError {
	return &PipelineError{Code: ErrCodeServiceUnavailable, Message: msg, Cause: cause}
}

// Integrity creates an internal invariant violation error.
func Integrity(msg string, cause error) *PipelineError {
	return &PipelineError{Code: ErrCodeIntegrity, Message: msg, Cause: cause}
}

// HandoffTimeout creates a hand-off timeout error.
func HandoffTimeout(msg string) *PipelineError {
	return &PipelineError{Code: ErrCodeHandoffTimeout, Message: msg}
}

// QueueFull creates a queue-full error.
func QueueFull(msg string) *PipelineError {
	return &PipelineError{Code: ErrCodeQueueFull, Message: msg}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if pe, ok := err.(*PipelineError); ok {
		return pe.Code == code
	}
	return false
}

// CodeOf extracts the error code from any error, defaulting to
// ErrCodeIntegrity for unstructured errors.
func CodeOf(err error) ErrorCode {
	if pe, ok := err.(*PipelineError); ok {
		return pe.Code
	}
	return ErrCodeIntegrity
}
