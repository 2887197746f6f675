package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidToken            = errors.New("invalid or expired token")
	ErrUnauthorized            = errors.New("unauthorized access")
	ErrInsufficientPermissions = errors.New("insufficient permissions")

	ErrParcelNotFound       = errors.New("parcel not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidInput         = errors.New("invalid input data")

	// Realtime transport cannot be established in this environment.
	ErrTransportUnavailable = errors.New("realtime transport unavailable")
	// Transport handle already torn down; emits and subscribes are no-ops.
	ErrTransportClosed = errors.New("realtime transport closed")

	ErrLocationUnsupported = errors.New("geolocation is not supported on this device")
	ErrLocationDenied      = errors.New("geolocation permission denied")
	ErrLocationTimeout     = errors.New("geolocation fix timed out")
)

// AppError codes used across handlers and services.
const (
	CodeIllegalTransition    = "ILLEGAL_TRANSITION"
	CodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	CodeTransportUnavailable = "TRANSPORT_UNAVAILABLE"
	CodeLocationDenied       = "LOCATION_DENIED"
	CodeLocationUnsupported  = "LOCATION_UNSUPPORTED"
	CodeLocationTransient    = "LOCATION_TRANSIENT"
	CodeRefetchRequired      = "REFETCH_REQUIRED"
	CodeValidationError      = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
)

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// AsAppError unwraps err to an *AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
