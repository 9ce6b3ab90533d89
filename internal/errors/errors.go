// Package errors provides typed errors for the portfolio bridge.
package errors

import (
	"errors"
	"fmt"

	"portfolio_bridge/internal/models"
)

// Sentinel errors for common error cases.
var (
	// ErrSessionMissing indicates no session is on file for the provider.
	ErrSessionMissing = errors.New("session missing")

	// ErrSessionInvalid indicates the session expired and could not be refreshed.
	ErrSessionInvalid = errors.New("session invalid")

	// ErrNetworkFailure indicates a transport error or a non-2xx response.
	ErrNetworkFailure = errors.New("network failure")

	// ErrParse indicates a provider response did not have the expected shape.
	ErrParse = errors.New("parse error")

	// ErrExtractionTimeout indicates the browser did not deliver session data in time.
	ErrExtractionTimeout = errors.New("extraction timeout")

	// ErrNotFound indicates a resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrValidation indicates a validation error.
	ErrValidation = errors.New("validation error")

	// ErrUnsupported indicates a provider does not implement an operation.
	ErrUnsupported = errors.New("operation not supported")
)

// AppError is a structured application error.
type AppError struct {
	// Type is the error type (sentinel error).
	Type error
	// Message is the user-facing error message.
	Message string
	// Provider is the provider the error relates to, if any.
	Provider models.Provider
	// Status is the upstream HTTP status, when one was received.
	Status int
	// Details contains additional error details.
	Details map[string]any
	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error type.
func (e *AppError) Unwrap() error {
	return e.Type
}

// Is checks if this error matches the target.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Type, target)
}

// WithDetails adds details to an AppError.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// SessionMissing creates an error for a provider with no stored session.
func SessionMissing(p models.Provider) *AppError {
	return &AppError{
		Type:     ErrSessionMissing,
		Message:  fmt.Sprintf("no session for %s", p),
		Provider: p,
	}
}

// SessionInvalid creates an error for an expired, unrefreshable session.
func SessionInvalid(p models.Provider, cause error) *AppError {
	return &AppError{
		Type:     ErrSessionInvalid,
		Message:  fmt.Sprintf("session for %s is no longer valid", p),
		Provider: p,
		Cause:    cause,
	}
}

// NetworkFailure creates an error for a failed provider call. status is 0 for transport errors.
func NetworkFailure(p models.Provider, status int, cause error) *AppError {
	msg := fmt.Sprintf("%s request failed", p)
	if status != 0 {
		msg = fmt.Sprintf("%s request failed with status %d", p, status)
	}
	return &AppError{
		Type:     ErrNetworkFailure,
		Message:  msg,
		Provider: p,
		Status:   status,
		Cause:    cause,
	}
}

// ParseError creates an error for an unexpected response shape.
func ParseError(p models.Provider, op models.Operation, cause error) *AppError {
	return &AppError{
		Type:     ErrParse,
		Message:  fmt.Sprintf("parsing %s %s response", p, op),
		Provider: p,
		Cause:    cause,
	}
}

// ExtractionTimeout creates an error for a browser that never answered.
func ExtractionTimeout(p models.Provider) *AppError {
	return &AppError{
		Type:     ErrExtractionTimeout,
		Message:  fmt.Sprintf("%s session extraction timed out", p),
		Provider: p,
	}
}

// Unsupported creates an error for an operation a provider lacks.
func Unsupported(p models.Provider, op models.Operation) *AppError {
	return &AppError{
		Type:     ErrUnsupported,
		Message:  fmt.Sprintf("%s does not support %s", p, op),
		Provider: p,
	}
}

// NotFound creates a not found error.
func NotFound(resource string) *AppError {
	return &AppError{
		Type:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// Validation creates a validation error.
func Validation(message string) *AppError {
	return &AppError{
		Type:    ErrValidation,
		Message: message,
	}
}

// ValidationField creates a validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return Validation(message).WithDetails(map[string]any{"field": field})
}

// IsSessionError reports whether the caller must re-authenticate.
func IsSessionError(err error) bool {
	return errors.Is(err, ErrSessionMissing) || errors.Is(err, ErrSessionInvalid)
}

// IsParse checks if an error is a parse error.
func IsParse(err error) bool {
	return errors.Is(err, ErrParse)
}

// IsNetwork checks if an error is a network failure.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetworkFailure)
}

// IsExtractionTimeout checks if an error is an extraction timeout.
func IsExtractionTimeout(err error) bool {
	return errors.Is(err, ErrExtractionTimeout)
}

// StatusOf returns the upstream status carried by err, or 0.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}

// HTTPStatus returns the appropriate HTTP status code for an error.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrSessionMissing), errors.Is(err, ErrSessionInvalid):
		return 401
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnsupported):
		return 400
	case errors.Is(err, ErrNetworkFailure), errors.Is(err, ErrParse):
		return 502
	case errors.Is(err, ErrExtractionTimeout):
		return 504
	default:
		return 500
	}
}
