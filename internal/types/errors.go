package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants. Handlers and services use these constants
// instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidTrainNumber ErrorCode = "validation_invalid_train_number"
	ErrCodeValidationInvalidRoute       ErrorCode = "validation_invalid_route"
	ErrCodeValidationInvalidDestination ErrorCode = "validation_invalid_destination"
	ErrCodeValidationInvalidCoordinate  ErrorCode = "validation_invalid_coordinate"
	ErrCodeValidationMissingField       ErrorCode = "validation_missing_required_field"

	// Not Found (404)
	ErrCodeNotFoundTrip       ErrorCode = "not_found_trip"
	ErrCodeNotFoundRouteCache ErrorCode = "not_found_route_cache"

	// Sensor status (surfaced to the user, never crash the sampling loop)
	ErrCodeSensorPermissionDenied ErrorCode = "sensor_permission_denied"
	ErrCodeSensorUnavailable      ErrorCode = "sensor_unavailable"
	ErrCodeSensorTimeout          ErrorCode = "sensor_timeout"

	// Upstream (503). The route provider being down is not an engine fault;
	// it surfaces to the caller as "cannot start trip".
	ErrCodeUpstreamProviderUnavailable ErrorCode = "upstream_provider_unavailable"
	ErrCodeUpstreamRateLimited         ErrorCode = "upstream_rate_limited"

	// Internal (500)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalDispatch   ErrorCode = "internal_dispatch_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to the status the bridge layer returns.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusServiceUnavailable // 503
	case strings.HasPrefix(s, "sensor_"),
		strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type. All domain and handler
// errors are expressed as AppError to enable consistent error formatting,
// HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
