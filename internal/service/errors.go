package service

import (
	"errors"
	"fmt"

	"portal/internal/policy"
	"portal/internal/repository"
)

var (
	// ErrForbidden is returned when the policy denies an operation. It is the
	// policy's own sentinel so callers can match either.
	ErrForbidden = policy.ErrDenied
	// ErrNotFound is returned when the addressed file or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStore is returned when the object store fails on a path where the
	// failure cannot be downgraded to a warning.
	ErrStore = errors.New("object store error")
	// ErrInvalidCredentials is returned by Login for any unknown username or
	// wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrProtectedUser is returned when deleting a superuser or oneself.
	ErrProtectedUser = errors.New("user cannot be deleted")

	ErrQuotaExceeded  = repository.ErrQuotaExceeded
	ErrDuplicateField = repository.ErrDuplicateField
	ErrUsernameTaken  = repository.ErrUsernameTaken
)

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
