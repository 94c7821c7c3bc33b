package domain

import "errors"

// Errors raised by the registry, lifecycle, conversation, analytics and
// access-control components. Services wrap these with %w; the HTTP boundary
// maps them with errors.Is.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")

	ErrNotFound       = errors.New("not found")
	ErrTenantNotFound = errors.New("tenant not found")
	ErrLeadNotFound   = errors.New("lead not found")
	// ErrTenantMismatch is reported to callers as not found
	ErrTenantMismatch = errors.New("tenant mismatch")

	ErrDuplicateTenant    = errors.New("tenant already exists")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrAgentBlocked       = errors.New("lead is blocked for agent actions")
	ErrVersionConflict    = errors.New("lead was modified concurrently")
	ErrValidation         = errors.New("validation error")
	ErrChannelUnavailable = errors.New("channel provider unavailable")
)

// ValidationError names the offending field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Unwrap lets errors.Is(err, ErrValidation) match
func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
