package drtrace

import (
	"errors"
	"fmt"
)

// Error is a structured error from the daemon API, carrying the HTTP status
// and the daemon's error code.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("drtrace: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsInvalidParams reports whether err is a 400 with code INVALID_PARAMS,
// e.g. mutually exclusive message filters.
func IsInvalidParams(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == "INVALID_PARAMS"
	}
	return false
}

// IsValidationError reports whether err is any 4xx from the daemon.
func IsValidationError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode >= 400 && e.StatusCode < 500
	}
	return false
}
