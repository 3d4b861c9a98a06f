package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Auth errors
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"
	CodeForbidden    = "FORBIDDEN"

	// Validation errors
	CodeValidationConflict = "VALIDATION_CONFLICT"
	CodeBadRequest         = "BAD_REQUEST"
	CodeMissingField       = "MISSING_FIELD"

	// Sync errors. Cache corruption and schema skew are read-result states,
	// not errors, and carry no code here.
	// DUPLICATE_OPERATION is a success path: the operation already owns a
	// ledger record, so the mutation is skipped, not retried.
	CodeDuplicateOperation = "DUPLICATE_OPERATION"
	CodeUnreachable        = "NETWORK_UNREACHABLE"

	// Resource errors
	CodeNotFound = "NOT_FOUND"
	CodeConflict = "CONFLICT"

	// Internal errors
	CodeDatabaseError = "DATABASE_ERROR"
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

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
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

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func ValidationConflict(message string) *AppError {
	return &AppError{
		Code:    CodeValidationConflict,
		Message: message,
		Status:  http.StatusUnprocessableEntity,
	}
}

func NotFound(message string) *AppError {
	if message == "" {
		message = "not found"
	}
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
		Status:  http.StatusNotFound,
	}
}

func Database(err error, message string) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func Internal(err error, message string) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func Unreachable(err error) *AppError {
	return &AppError{
		Code:    CodeUnreachable,
		Message: "remote unreachable",
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
