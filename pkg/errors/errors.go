package errors

import (
	"context"
	"errors"
	"fmt"
)

// AsLinkError extracts a LinkError from an error chain.
func AsLinkError(err error) *LinkError {
	var linkErr *LinkError
	if errors.As(err, &linkErr) {
		return linkErr
	}
	return nil
}

// IsLinkError checks if error is a LinkError
func IsLinkError(err error) bool {
	return AsLinkError(err) != nil
}

// CodeOf returns the code of the first LinkError in the chain, or "" if none.
func CodeOf(err error) Code {
	if linkErr := AsLinkError(err); linkErr != nil {
		return linkErr.Code
	}
	return ""
}

// IsCode checks whether err carries code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsRetryable reports whether retrying the failed call may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if linkErr := AsLinkError(err); linkErr != nil {
		return linkErr.Retryable
	}
	return isTransient(err)
}

// Wrap converts an arbitrary failure into a LinkError. LinkErrors pass through
// unchanged; anything else becomes VALIDATION_FAILED.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	if linkErr := AsLinkError(err); linkErr != nil {
		return linkErr
	}

	return NewValidationFailed(message).
		WithCause(err).
		WithRetryable(isTransient(err))
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}
	var retryable interface{ RetryableError() bool }
	if errors.As(err, &retryable) && retryable.RetryableError() {
		return true
	}
	return false
}
