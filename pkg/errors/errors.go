// Package errors defines the sentinel errors shared by the index, the
// registry service and the HTTP layer, plus the mapping from those errors to
// HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrEntityExists   = errors.New("entity already exists")
	ErrAlreadyTagged  = errors.New("tag already attached")
	ErrNotTagged      = errors.New("tag not attached")
	ErrInvalidInput   = errors.New("invalid input")
	ErrTimeout        = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IsConflict reports whether err is one of the recoverable "nothing changed"
// outcomes: a duplicate registration, a duplicate tag or a missing tag.
func IsConflict(err error) bool {
	return errors.Is(err, ErrEntityExists) ||
		errors.Is(err, ErrAlreadyTagged) ||
		errors.Is(err, ErrNotTagged)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrEntityNotFound):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
