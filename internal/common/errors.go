// Package common defines shared constants and sentinel errors used across
// the pilgrim server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors raised at the request boundary.
	ErrorValidation = errors.New("validation error")

	// Token errors. Not-found and expired are deliberately the same value.
	ErrInvalidToken = errors.New("invalid token")

	// Session errors.
	ErrSessionExpired = errors.New("session expired")
)

// ValidationError carries a message that is safe to show to the client. It
// unwraps to Kind, so errors.Is(err, ErrorValidation) or
// errors.Is(err, ErrorAlreadyExists) still works.
type ValidationError struct {
	Kind    error
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// NewValidationError returns a *ValidationError of kind ErrorValidation.
func NewValidationError(msg string) error {
	return &ValidationError{Kind: ErrorValidation, Message: msg}
}
