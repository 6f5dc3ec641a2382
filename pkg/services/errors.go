// Package services provides the business operations over process
// definitions and instances, sitting between the web layer and the engine.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors, mapped to 4xx responses by the web layer.
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrProcessNil         = errors.New("process cannot be nil")
	ErrNameRequired       = errors.New("process name is required")
	ErrTargetTypeRequired = errors.New("process target type is required")
	ErrGraphInvalid       = errors.New("process graph failed validation")

	// Business logic conflicts (409 Conflict).
	ErrProcessInUse     = errors.New("process has non-terminal instances")
	ErrProcessInactive  = errors.New("process is not active")
	ErrInstanceTerminal = errors.New("instance already reached a terminal state")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrProcessNil) ||
		errors.Is(err, ErrNameRequired) ||
		errors.Is(err, ErrTargetTypeRequired) ||
		errors.Is(err, ErrGraphInvalid)
}

// IsConflictError checks if an error should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrProcessInUse) ||
		errors.Is(err, ErrProcessInactive) ||
		errors.Is(err, ErrInstanceTerminal)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
