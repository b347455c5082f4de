package model

import (
	"encoding/json"
	"fmt"
)

// APIError represents an API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MarshalJSON implements json.Marshaler
func (e APIError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details,omitempty"`
	}{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}

// Common API errors
var (
	// ErrInvalidRequest is returned when the request is invalid
	ErrInvalidRequest = APIError{
		Status:  400,
		Code:    "invalid_request",
		Message: "The request is invalid",
	}

	// ErrUnauthorized is returned when the caller is not authenticated
	ErrUnauthorized = APIError{
		Status:  401,
		Code:    "unauthorized",
		Message: "Authentication is required",
	}

	// ErrNotFound is returned when a session is not found
	ErrNotFound = APIError{
		Status:  404,
		Code:    "not_found",
		Message: "The requested session was not found",
	}

	// ErrConflict is returned when capture cannot start; Code carries the reason
	ErrConflict = APIError{
		Status:  409,
		Code:    "conflict",
		Message: "Capture could not be started",
	}

	// ErrAnswerTimeout is returned when no local answer was produced in time
	ErrAnswerTimeout = APIError{
		Status:  504,
		Code:    "answer_timeout",
		Message: "The local answer is not ready",
	}

	// ErrInternalServer is returned when an internal server error occurs
	ErrInternalServer = APIError{
		Status:  500,
		Code:    "internal_server_error",
		Message: "An internal server error occurred",
	}

	// ErrServiceUnavailable is returned when the service is unavailable
	ErrServiceUnavailable = APIError{
		Status:  503,
		Code:    "service_unavailable",
		Message: "The service is currently unavailable",
	}
)

// NewAPIError creates a new API error with the given status, code, and message
func NewAPIError(status int, code, message string) APIError {
	return APIError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

// WithDetails adds details to an API error
func (e APIError) WithDetails(details string) APIError {
	e.Details = details
	return e
}

// WithCode replaces the error code
func (e APIError) WithCode(code string) APIError {
	e.Code = code
	return e
}
