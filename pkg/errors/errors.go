package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrIndexUnavailable is returned when the document source failed or
	// returned zero documents. Callers must keep the previous live index.
	ErrIndexUnavailable = errors.New("search index unavailable")
	// ErrInvalidQuery marks malformed filter, sort, or pagination input.
	// Handlers clamp or ignore rather than fail the whole request.
	ErrInvalidQuery = errors.New("invalid query input")
	// ErrRevalidationFailed marks a failed background cache refresh. The
	// stale entry is retained.
	ErrRevalidationFailed = errors.New("cache revalidation failed")
	// ErrCacheStoreUnavailable marks an unreachable persistent store. The
	// engine degrades to computing fresh results.
	ErrCacheStoreUnavailable = errors.New("cache store unavailable")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInternal              = errors.New("internal error")
	ErrTimeout               = errors.New("operation timed out")
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

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrIndexUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
