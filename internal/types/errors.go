package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidTerm  ErrorCode = "validation_invalid_term"
	ErrCodeValidationInvalidPlot  ErrorCode = "validation_invalid_plot_id"
	ErrCodeValidationInvalidEmail ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidOwner ErrorCode = "validation_invalid_owner_identity"
	ErrCodeValidationInvalidRate  ErrorCode = "validation_invalid_rate"

	// Auth (401)
	ErrCodeAuthTokenMissing     ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid     ErrorCode = "auth_token_invalid"
	ErrCodeAuthSignatureInvalid ErrorCode = "auth_signature_invalid"

	// Not Found (404)
	ErrCodeNotFoundPlot ErrorCode = "not_found_plot"

	// Conflict (409)
	ErrCodeConflictPlotActive    ErrorCode = "conflict_plot_already_active"
	ErrCodeConflictPlotNotActive ErrorCode = "conflict_plot_not_active"

	// Duplicate webhook delivery. Internal and non-fatal: the webhook
	// transport answers success so the provider stops retrying.
	ErrCodeDuplicateEvent ErrorCode = "duplicate_event"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamStripe     ErrorCode = "upstream_stripe_unavailable"
	ErrCodeUpstreamRateLimit  ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamDown       ErrorCode = "upstream_unavailable"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case c == ErrCodeDuplicateEvent:
		// Duplicates are acknowledged as success on the webhook path;
		// this mapping only applies if one ever escapes to a client.
		return http.StatusOK
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the
// service. All domain and handler errors should be expressed as AppError to
// enable consistent error formatting, HTTP status mapping, and error chain
// support.
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
// optional underlying error. This is the standard constructor for domain
// errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// IsCode reports whether err is (or wraps) an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
