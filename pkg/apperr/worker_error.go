// Package apperr provides structured application errors with a stable
// error-code taxonomy used in logs and persisted records.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// External errors
	CodeTransportError   = "TRANSPORT_ERROR"   // Network/timeout to a remote service
	CodePermissionDenied = "PERMISSION_DENIED" // Credential lacks the required scope
	CodeRateLimited      = "RATE_LIMITED"
	CodeClassifierError  = "CLASSIFIER_ERROR"
	CodeDatabaseError    = "DATABASE_ERROR"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeTimeout       = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// External errors

// Transport wraps a network-level failure against a remote service.
func Transport(service string, err error) *AppError {
	return &AppError{
		Code:    CodeTransportError,
		Message: fmt.Sprintf("transport error calling %s", service),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"service": service},
		Err:     err,
	}
}

// PermissionDenied marks a credential-scope problem. Operator remediation
// is reauthorization, not retry, so this code is kept distinct from
// generic transport failures.
func PermissionDenied(operation string, err error) *AppError {
	return &AppError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("permission denied: %s", operation),
		Status:  http.StatusForbidden,
		Details: map[string]any{"operation": operation},
		Err:     err,
	}
}

func RateLimited(service string) *AppError {
	return &AppError{
		Code:    CodeRateLimited,
		Message: fmt.Sprintf("rate limited by %s", service),
		Status:  http.StatusTooManyRequests,
		Details: map[string]any{"service": service},
	}
}

func ClassifierError(err error) *AppError {
	return &AppError{
		Code:    CodeClassifierError,
		Message: "classification backend failed",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: fmt.Sprintf("database error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Internal errors
func Internal(message string) *AppError {
	if message == "" {
		message = "internal error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeInternalError, "internal error", http.StatusInternalServerError)
}

// IsPermission reports whether err carries the permission-denied code.
func IsPermission(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodePermissionDenied
	}
	return false
}

// CodeOf returns the error code, or CodeInternalError for plain errors.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}
