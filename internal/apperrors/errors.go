// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrUpstream       = errors.New("upstream error")
	ErrFetch          = errors.New("fetch error")
	ErrInternal       = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message, safe to return to callers
	Field    string // For validation errors (e.g., "agreementId")
	Resource string // For not found/conflict (e.g., "job")
	Op       string // Operation that failed (e.g., "cluster.createWorkflow")
	Cause    error  // Underlying error, logged but never returned to callers
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// Authentication creates an error for a signature that could not be recovered.
func Authentication(message string) error {
	return &Error{
		Sentinel: ErrAuthentication,
		Message:  message,
	}
}

// Unauthorized creates an error for a caller that is not on an allow-list.
func Unauthorized(message string) error {
	return &Error{
		Sentinel: ErrUnauthorized,
		Message:  message,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, message string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  message,
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, message string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  message,
		Resource: resource,
	}
}

// Upstream creates an error for a failed call to the store or cluster.
func Upstream(op string, cause error) error {
	return &Error{
		Sentinel: ErrUpstream,
		Message:  fmt.Sprintf("%s failed", op),
		Op:       op,
		Cause:    cause,
	}
}

// Fetch creates an error for a result download that could not be started.
func Fetch(op, message string, cause error) error {
	return &Error{
		Sentinel: ErrFetch,
		Message:  message,
		Op:       op,
		Cause:    cause,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  "An unexpected error occurred",
		Op:       op,
		Cause:    cause,
	}
}

// Detail returns the full error chain for logging, including the cause.
func Detail(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Cause != nil {
		return fmt.Sprintf("%s: %v", appErr.Message, appErr.Cause)
	}
	return err.Error()
}
