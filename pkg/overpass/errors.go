// Package overpass provides a client for the Overpass API: query
// construction, request execution, response parsing and caching.
package overpass

import (
	"errors"
	"fmt"

	"github.com/NERVsystems/overpass/pkg/geo"
)

// ErrorCode classifies errors surfaced by this package.
type ErrorCode string

// Standard error codes
const (
	// Validation errors, raised synchronously at construction time
	ErrInvalidCoordinates ErrorCode = "INVALID_COORDINATES"
	ErrInvalidBoundingBox ErrorCode = "INVALID_BOUNDING_BOX"
	ErrQueryError         ErrorCode = "QUERY_ERROR"

	// Request errors, surfaced asynchronously from Execute
	ErrNetworkError    ErrorCode = "NETWORK_ERROR"
	ErrTimeout         ErrorCode = "TIMEOUT"
	ErrInvalidResponse ErrorCode = "INVALID_RESPONSE"
	ErrNoData          ErrorCode = "NO_DATA"
)

// Error is the error type returned by this package. It carries a
// machine-readable code and optionally wraps an underlying cause.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a new Error wrapping an underlying cause.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// IsCode reports whether err or any error in its chain is an *Error with
// the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the error code of err, or an empty code if err is not
// from this package.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// wrapGeoError folds pkg/geo sentinel errors into coded errors.
func wrapGeoError(err error) *Error {
	switch {
	case errors.Is(err, geo.ErrInvalidBoundingBox):
		return WrapError(ErrInvalidBoundingBox, "invalid bounding box", err)
	case errors.Is(err, geo.ErrInvalidCoordinates):
		return WrapError(ErrInvalidCoordinates, "invalid coordinates", err)
	default:
		return WrapError(ErrQueryError, "invalid query geometry", err)
	}
}
