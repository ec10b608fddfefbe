package endpoint

import (
	"errors"
	"fmt"
)

// ErrPermissionDenied is surfaced by the authorization collaborator; the
// lifecycle never generates it itself.
var ErrPermissionDenied = errors.New("permission denied")

// ValidationError marks malformed or policy-violating input. It is never
// retried and maps to a client error at the HTTP surface.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError marks an unknown ID within the caller's tenant scope.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// ConflictError marks a duplicate endpoint name within the same tenant and
// kind scope.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }
