// Package apperrors defines the error taxonomy shared by stores and handlers
// and the handler that turns those errors into JSON responses.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an error for clients and logs.
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeRateLimit    ErrorType = "RATE_LIMIT"
	ErrorTypeInternal     ErrorType = "INTERNAL"
	ErrorTypeUnavailable  ErrorType = "UNAVAILABLE"
	ErrorTypeTimeout      ErrorType = "TIMEOUT"
	ErrorTypeCanceled     ErrorType = "CANCELED"
)

// StatusClientClosedRequest is the non-standard status recorded when the
// client went away before a response could be written.
const StatusClientClosedRequest = 499

// AppError is an error that knows how it should be reported over HTTP.
type AppError struct {
	Type       ErrorType      `json:"type"`
	Message    string         `json:"message"`
	Code       string         `json:"code,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
	HTTPStatus int            `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCode sets a machine readable code.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetails attaches structured details, e.g. per-field validation messages.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithCause records the underlying error. The cause is logged, never sent.
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

func newError(t ErrorType, status int, message string) *AppError {
	return &AppError{Type: t, Message: message, HTTPStatus: status}
}

func NewValidationError(message string) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message)
}

// NewNotFoundError builds "<resource> not found".
func NewNotFoundError(resource string) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, resource+" not found")
}

func NewConflictError(message string) *AppError {
	return newError(ErrorTypeConflict, http.StatusConflict, message)
}

func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return newError(ErrorTypeUnauthorized, http.StatusUnauthorized, message)
}

func NewForbiddenError(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return newError(ErrorTypeForbidden, http.StatusForbidden, message)
}

func NewRateLimitError(message string) *AppError {
	return newError(ErrorTypeRateLimit, http.StatusTooManyRequests, message)
}

func NewInternalError(message string) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message)
}

// NewUnavailableError reports a dependency that cannot be reached or is not configured.
func NewUnavailableError(service string) *AppError {
	return newError(ErrorTypeUnavailable, http.StatusServiceUnavailable,
		fmt.Sprintf("service '%s' is unavailable", service))
}

// NewTimeoutError maps to 504 since the deadline that expired belongs to an upstream call.
func NewTimeoutError(operation string) *AppError {
	return newError(ErrorTypeTimeout, http.StatusGatewayTimeout,
		fmt.Sprintf("operation '%s' timed out", operation))
}

// NewCanceledError reports work abandoned because the caller canceled it.
func NewCanceledError(operation string) *AppError {
	return newError(ErrorTypeCanceled, StatusClientClosedRequest,
		fmt.Sprintf("operation '%s' was canceled", operation))
}

// FromContext converts an expired deadline into a timeout error and a
// canceled context into a canceled error. It returns nil for any other error.
func FromContext(operation string, err error) *AppError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError(operation).WithCause(err)
	case errors.Is(err, context.Canceled):
		return NewCanceledError(operation).WithCause(err)
	}
	return nil
}

// GetAppError extracts the first AppError in err's chain.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

func IsType(err error, t ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == t
}

func IsNotFound(err error) bool     { return IsType(err, ErrorTypeNotFound) }
func IsConflict(err error) bool     { return IsType(err, ErrorTypeConflict) }
func IsValidation(err error) bool   { return IsType(err, ErrorTypeValidation) }
func IsForbidden(err error) bool    { return IsType(err, ErrorTypeForbidden) }
func IsUnauthorized(err error) bool { return IsType(err, ErrorTypeUnauthorized) }
func IsTimeout(err error) bool      { return IsType(err, ErrorTypeTimeout) }
func IsCanceled(err error) bool     { return IsType(err, ErrorTypeCanceled) }

// Wrap returns err unchanged when it already is an AppError, otherwise an
// internal error carrying err as cause.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if GetAppError(err) != nil {
		return err
	}
	if ctxErr := FromContext(message, err); ctxErr != nil {
		return ctxErr
	}
	return NewInternalError(message).WithCause(err)
}
