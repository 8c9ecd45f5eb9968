package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("record not found")
	ErrShapeMismatch        = errors.New("record shape mismatch")
	ErrBackend              = errors.New("backend request failed")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrPageOutOfRange       = errors.New("page out of range")
	ErrConfirmationRequired = errors.New("confirmation required")
)

// ValidationError is a local pre-submission failure; no request was sent
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ShapeError reports a backend record that does not match its collection schema
type ShapeError struct {
	Collection string
	Field      string
	Reason     string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Collection, e.Field, e.Reason)
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }

// APIError is a non-2xx reply from the backend
type APIError struct {
	Method  string
	Path    string
	Status  int
	Name    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// Is lets callers match on the generic kinds
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrBackend:
		return true
	case ErrNotFound:
		return e.Status == 404
	case ErrUnauthorized:
		return e.Status == 401
	case ErrForbidden:
		return e.Status == 403
	}
	return false
}

// UserMessage picks the single message string shown to the admin:
// validation text, then the server's own message, then fallback.
func UserMessage(err error, fallback string) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
