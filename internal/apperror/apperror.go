// Package apperror defines the application error taxonomy shared by the
// backend service and the client-side auth flow.
//
// Errors are sentinel values wrapped in *AppError so callers can branch with
// errors.Is while still carrying a human-readable message (and, for remote
// failures, whatever detail the server supplied).
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrRemote covers transport failures and backend rejections: the network
	// call itself failed, or the server answered with a non-2xx status.
	ErrRemote = errors.New("remote error")

	// ErrVerificationFailed is an OTP mismatch. It is deliberately distinct
	// from ErrRemote: a wrong code is an expected, retryable outcome, not a
	// transport fault.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrPrecondition marks a gated action invoked without its gate
	// satisfied. Correct UI wiring never reaches it; when it fires it is a
	// programming-contract violation worth logging on its own.
	ErrPrecondition = errors.New("precondition not met")
)

type AppError struct {
	Err     error  // sentinel, for errors.Is
	Message string // human-readable error message
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Remote wraps a backend or transport failure. detail is the server-supplied
// message when one was parseable, or a local description of the failure.
func Remote(detail string) *AppError {
	if detail == "" {
		detail = "the server could not be reached"
	}
	return &AppError{
		Err:     ErrRemote,
		Message: detail,
	}
}

// VerificationFailed reports an OTP code that did not match. The challenge
// stays open; the user may retry with a fresh code entry.
func VerificationFailed(message string) *AppError {
	if message == "" {
		message = "the verification code did not match"
	}
	return &AppError{
		Err:     ErrVerificationFailed,
		Message: message,
	}
}

// Precondition reports a gated action whose gate was not satisfied.
func Precondition(message string) *AppError {
	return &AppError{
		Err:     ErrPrecondition,
		Message: message,
	}
}
