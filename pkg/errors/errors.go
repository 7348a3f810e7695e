package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthenticated means the caller presented no or invalid
	// credentials. The pipeline never starts for such requests.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrAuthorizationUnavailable means the authorization decision point
	// could not be reached or returned an error. Affected candidates are
	// treated as blocked, never as allowed.
	ErrAuthorizationUnavailable = errors.New("authorization unavailable")

	// ErrNoAuthorizedContent means every candidate was blocked or no
	// candidate matched the question at all.
	ErrNoAuthorizedContent = errors.New("no authorized content")

	// ErrMalformedCorpus means the document source failed boundary
	// validation at startup. It is fatal: the process must not serve
	// traffic from a partially built index.
	ErrMalformedCorpus = errors.New("malformed document corpus")

	ErrInvalidInput = errors.New("invalid input")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrTimeout      = errors.New("operation timed out")
	ErrInternal     = errors.New("internal error")
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
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNoAuthorizedContent):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrAuthorizationUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
