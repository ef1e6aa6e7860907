package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorValidation    ErrorCode = "VALIDATION_ERROR"
	ErrorNotFound      ErrorCode = "NOT_FOUND"
	ErrorUpstream      ErrorCode = "UPSTREAM_ERROR"
	ErrorConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrorInternal      ErrorCode = "INTERNAL_ERROR"
)

// Error is the only error type handlers translate into responses. Reason is
// safe to show to callers; Err is the underlying cause.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// Validation builds a 400-class error for input the caller must fix.
func Validation(reason string) *Error {
	return newError(ErrorValidation, reason, nil)
}

// Configuration builds the error reported when required settings are absent.
func Configuration(reason string, err error) *Error {
	return newError(ErrorConfiguration, reason, err)
}

// Upstream builds the error for a dependency that failed or could not be reached.
func Upstream(reason string, err error) *Error {
	return newError(ErrorUpstream, reason, err)
}

// AsError extracts a *Error from err's chain. Anything else is an internal error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	return newError(ErrorInternal, "Internal server error", err)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var sc httpStatusCoder
	if !errors.As(err, &sc) {
		return 0, false
	}
	return sc.HTTPStatusCode(), true
}
