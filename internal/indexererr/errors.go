// Package indexererr defines the error taxonomy shared by the ingest and
// reconciliation pipeline. The class of an error decides what the job layer
// does with it: retry with backoff, skip the event, or abort loudly.
package indexererr

import (
	"errors"
	"fmt"
)

// Class categorizes an indexer error
type Class string

const (
	// ClassRecoverable marks errors caused by on-chain state that has not
	// caught up yet (owner mismatch, hash mismatch during reconciliation,
	// missing prerequisite row). The job layer re-enqueues with backoff.
	ClassRecoverable Class = "recoverable"
	// ClassValidation marks malformed or forged input (bad metadata, source
	// mismatch). The event is logged and skipped; retrying cannot fix it.
	ClassValidation Class = "validation"
	// ClassInvariant marks "should never happen" conditions, e.g. an
	// account resolving to two entity variants. Fatal for the job, never
	// retried.
	ClassInvariant Class = "invariant"
	// ClassTransport marks DB/RPC/content-store connectivity failures.
	// Retried as transient.
	ClassTransport Class = "transport"
)

// Error is a classified indexer error
type Error struct {
	Class   Class
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Recoverable creates a recoverable error
func Recoverable(code, format string, args ...interface{}) *Error {
	return &Error{Class: ClassRecoverable, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error
func Validation(code, format string, args ...interface{}) *Error {
	return &Error{Class: ClassValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Invariant creates an invariant-violation error
func Invariant(code, format string, args ...interface{}) *Error {
	return &Error{Class: ClassInvariant, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Transport wraps a connectivity failure
func Transport(code string, cause error) *Error {
	return &Error{Class: ClassTransport, Code: code, Message: "transport failure", Cause: cause}
}

// WithCause attaches an underlying cause
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// ClassOf returns the class of err, or ClassTransport for unclassified
// errors so that unknown failures default to being retried.
func ClassOf(err error) Class {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Class
	}
	return ClassTransport
}

// IsRecoverable reports whether err should be retried later because a
// causally-prior event has likely not yet been processed.
func IsRecoverable(err error) bool {
	return ClassOf(err) == ClassRecoverable
}

// IsValidation reports whether err marks input that can never succeed
func IsValidation(err error) bool {
	return ClassOf(err) == ClassValidation
}

// IsInvariant reports whether err marks a modeling bug
func IsInvariant(err error) bool {
	return ClassOf(err) == ClassInvariant
}

// IsTransport reports whether err is a connectivity failure
func IsTransport(err error) bool {
	return ClassOf(err) == ClassTransport
}

// ShouldRetry reports whether the job layer should re-enqueue after err
func ShouldRetry(err error) bool {
	switch ClassOf(err) {
	case ClassRecoverable, ClassTransport:
		return true
	default:
		return false
	}
}
