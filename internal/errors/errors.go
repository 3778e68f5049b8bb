// FilePath: internal/errors/errors.go
package errors

import (
	"fmt"
	"net/http"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Error types
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeStore       ErrorType = "store"
	ErrorTypeAuth        ErrorType = "authentication"
	ErrorTypeAuthorize   ErrorType = "authorization"
	ErrorTypeDatabase    ErrorType = "database"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeConfig      ErrorType = "configuration"
	ErrorTypeDecision    ErrorType = "decision"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeUnavailable ErrorType = "service_unavailable"
)

// APIError represents a structured API error
type APIError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Code      int       `json:"code"`
	RequestID string    `json:"request_id,omitempty"`
	Details   any       `json:"details,omitempty"`
	err       error     // Internal error for logging
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the internal error for errors.Is/As chains
func (e *APIError) Unwrap() error {
	return e.err
}

// WithRequestID adds a request ID to the error
func (e *APIError) WithRequestID(id string) *APIError {
	e.RequestID = id
	return e
}

// WithDetails adds additional details to the error
func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

// NewValidationError creates a new validation error
func NewValidationError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeValidation,
		Message: msg,
		Code:    http.StatusBadRequest,
		err:     err,
	}
}

// NewStoreError creates a new remote-store error (transient I/O)
func NewStoreError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeStore,
		Message: msg,
		Code:    http.StatusBadGateway,
		err:     err,
	}
}

// NewDatabaseError creates a new database error
func NewDatabaseError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeDatabase,
		Message: msg,
		Code:    http.StatusInternalServerError,
		err:     err,
	}
}

// NewAuthError creates a new authentication error
func NewAuthError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeAuth,
		Message: msg,
		Code:    http.StatusUnauthorized,
		err:     err,
	}
}

// NewAuthorizationError creates a new authorization (policy) error
func NewAuthorizationError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeAuthorize,
		Message: msg,
		Code:    http.StatusForbidden,
		err:     err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: msg,
		Code:    http.StatusNotFound,
		err:     err,
	}
}

// NewConfigError creates a new configuration error
func NewConfigError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeConfig,
		Message: msg,
		Code:    http.StatusPreconditionFailed,
		err:     err,
	}
}

// NewDecisionError creates a new decision-backend error
func NewDecisionError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeDecision,
		Message: msg,
		Code:    http.StatusBadGateway,
		err:     err,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeInternal,
		Message: msg,
		Code:    http.StatusInternalServerError,
		err:     err,
	}
}

// IsNotFound checks if an error is a NotFound error
func IsNotFound(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.Type == ErrorTypeNotFound
	}
	return false
}

// IsValidation checks if an error is a Validation error
func IsValidation(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.Type == ErrorTypeValidation
	}
	return false
}

// IsPolicy checks if an error is an authorization (policy) error
func IsPolicy(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.Type == ErrorTypeAuthorize
	}
	return false
}
