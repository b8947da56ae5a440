// Package errors provides standardized error handling for the lulinks API.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code returned to API clients.
type ErrorCode string

const (
	// Request errors
	VALIDATION_ERROR   ErrorCode = "VALIDATION_ERROR"   // Missing or malformed field
	METHOD_NOT_ALLOWED ErrorCode = "METHOD_NOT_ALLOWED" // Route exists but not for this method

	// Authentication/Authorization errors
	UNAUTHORIZED ErrorCode = "UNAUTHORIZED" // No credential or credential failed verification
	FORBIDDEN    ErrorCode = "FORBIDDEN"    // Authenticated principal does not own the resource

	// Resource errors
	NOT_FOUND ErrorCode = "NOT_FOUND" // Resource or statistics record absent
	CONFLICT  ErrorCode = "CONFLICT"  // Unique constraint violated (userName, user id)

	// Rate limiting
	RATE_LIMITED ErrorCode = "RATE_LIMITED" // Too many requests from one client

	// Server errors
	INTERNAL_SERVER_ERROR ErrorCode = "INTERNAL_SERVER_ERROR" // Store or provider failure
	UNAVAILABLE           ErrorCode = "UNAVAILABLE"           // Dependency not ready
)

// Error represents a standardized error response.
type Error struct {
	Code          ErrorCode   `json:"code"`
	Message       string      `json:"message"`
	CorrelationID string      `json:"correlationId"`
	Details       interface{} `json:"details,omitempty"`
	HTTPStatus    int         `json:"-"`
}

// New creates a new Error with the specified code and message.
func New(code ErrorCode, message string, correlationID string) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// NewWithDetails creates a new Error with the specified code, message, and details.
func NewWithDetails(code ErrorCode, message string, correlationID string, details interface{}) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		Details:       details,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// Internal wraps an unexpected failure. The cause is surfaced in details
// for diagnostics only.
func Internal(message string, correlationID string, cause error) *Error {
	var details interface{}
	if cause != nil {
		details = cause.Error()
	}
	return NewWithDetails(INTERNAL_SERVER_ERROR, message, correlationID, details)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// httpStatusCodeForCode maps error codes to HTTP status codes.
func httpStatusCodeForCode(code ErrorCode) int {
	switch code {
	case VALIDATION_ERROR:
		return http.StatusBadRequest
	case METHOD_NOT_ALLOWED:
		return http.StatusMethodNotAllowed
	case UNAUTHORIZED:
		return http.StatusUnauthorized
	case FORBIDDEN:
		return http.StatusForbidden
	case NOT_FOUND:
		return http.StatusNotFound
	case CONFLICT:
		return http.StatusConflict
	case RATE_LIMITED:
		return http.StatusTooManyRequests
	case UNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
