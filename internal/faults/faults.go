// Package faults defines the error taxonomy shared by the client, ingestion
// and chat layers: validation failures caught before any network call, failed
// backend requests, and mid-stream failures.
package faults

import (
	"errors"
	"fmt"
)

// ValidationError reports bad local input rejected before any network call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Message)
}

// NewValidation creates a ValidationError.
func NewValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// RequestError reports a non-success response from the backend. The operation
// aborts and local state stays unchanged unless a component documents
// otherwise.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// IsRequest reports whether err is (or wraps) a RequestError.
func IsRequest(err error) bool {
	var r *RequestError
	return errors.As(err, &r)
}

// StreamError reports a failure in the middle of a token stream. It
// terminates the current assistant message but never corrupts graph state.
type StreamError struct {
	Cause error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream failed: %v", e.Cause)
}

func (e *StreamError) Unwrap() error { return e.Cause }

// IsStream reports whether err is (or wraps) a StreamError.
func IsStream(err error) bool {
	var s *StreamError
	return errors.As(err, &s)
}
