// Package apperrors defines the error taxonomy shared by the pipeline:
// callers branch on the error kind, the HTTP layer maps kinds to status
// codes, and everything else wraps with fmt.Errorf("%w").
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindNotFound
	KindInvalidState
	KindRateLimited
	KindExternalAPI
	KindGenerationFailed
)

type Error struct {
	Kind    Kind
	Message string
	Err     error

	// StatusCode is set for KindExternalAPI errors.
	StatusCode int

	// Remaining and ResetAt are set for KindRateLimited errors so the
	// caller can report a wait duration.
	Remaining int
	ResetAt   time.Time
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewInvalidInput(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func NewNotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidState(format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func NewRateLimited(message string, remaining int, resetAt time.Time) error {
	return &Error{
		Kind:      KindRateLimited,
		Message:   message,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func NewExternalAPI(statusCode int, message string, err error) error {
	return &Error{
		Kind:       KindExternalAPI,
		Message:    message,
		Err:        err,
		StatusCode: statusCode,
	}
}

func NewGenerationFailed(message string, err error) error {
	return &Error{Kind: KindGenerationFailed, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func IsInvalidInput(err error) bool     { return KindOf(err) == KindInvalidInput }
func IsNotFound(err error) bool         { return KindOf(err) == KindNotFound }
func IsInvalidState(err error) bool     { return KindOf(err) == KindInvalidState }
func IsRateLimited(err error) bool      { return KindOf(err) == KindRateLimited }
func IsExternalAPI(err error) bool      { return KindOf(err) == KindExternalAPI }
func IsGenerationFailed(err error) bool { return KindOf(err) == KindGenerationFailed }

// HTTPStatus maps an error to the status code the operator API returns.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindExternalAPI:
		return http.StatusBadGateway
	case KindGenerationFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
