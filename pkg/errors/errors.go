// Package errors defines custom error types for the inference gateway
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents different types of errors
type ErrorCode string

const (
	// Authentication errors
	ErrUnauthorized  ErrorCode = "UNAUTHORIZED"
	ErrInvalidAPIKey ErrorCode = "INVALID_API_KEY"

	// Request validation errors
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"

	// Backend errors
	ErrBackendUnavailable   ErrorCode = "BACKEND_UNAVAILABLE"
	ErrAllBackendsExhausted ErrorCode = "ALL_BACKENDS_EXHAUSTED"
	ErrConcurrencyTimeout   ErrorCode = "CONCURRENCY_TIMEOUT"

	// Internal errors
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCacheError     ErrorCode = "CACHE_ERROR"
)

// GatewayError represents a gateway-specific error
type GatewayError struct {
	Code           ErrorCode `json:"code"`
	Message        string    `json:"message"`
	Details        string    `json:"details,omitempty"`
	HTTPStatusCode int       `json:"-"`
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewGatewayError creates a new gateway error
func NewGatewayError(code ErrorCode, message string) *GatewayError {
	return &GatewayError{
		Code:           code,
		Message:        message,
		HTTPStatusCode: getHTTPStatusCode(code),
	}
}

// NewGatewayErrorWithDetails creates a new gateway error with details
func NewGatewayErrorWithDetails(code ErrorCode, message, details string) *GatewayError {
	return &GatewayError{
		Code:           code,
		Message:        message,
		Details:        details,
		HTTPStatusCode: getHTTPStatusCode(code),
	}
}

// getHTTPStatusCode maps error codes to HTTP status codes
func getHTTPStatusCode(code ErrorCode) int {
	switch code {
	case ErrUnauthorized, ErrInvalidAPIKey:
		return http.StatusUnauthorized
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrBackendUnavailable, ErrAllBackendsExhausted, ErrConcurrencyTimeout:
		return http.StatusServiceUnavailable
	case ErrInternalServer, ErrCacheError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Common error instances
var (
	ErrAuthenticationRequired = NewGatewayError(ErrUnauthorized, "Authentication required")
	ErrInvalidRequestFormat   = NewGatewayError(ErrInvalidRequest, "Invalid request format")
	ErrNoUsableBackend        = NewGatewayError(ErrAllBackendsExhausted, "No backend produced a usable response")
)
