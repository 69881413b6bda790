// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Assignment errors.
	ErrNoTransactions = errors.New("no transactions to assign")
	ErrNoOptions      = errors.New("no valid options")
	ErrAssignment     = errors.New("assignment failed")

	// Remote endpoint errors.
	ErrCircuitOpen  = errors.New("circuit breaker is open")
	ErrTrialTimeout = errors.New("half-open trial call timed out")
	ErrRemote       = errors.New("remote call failed")

	// Response errors. None of these are retryable: asking again with the
	// same prompt and schema will not fix them.
	ErrParse         = errors.New("failed to parse response")
	ErrMissingField  = errors.New("response field missing")
	ErrCountMismatch = errors.New("response count mismatch")
	ErrInvalidLabel  = errors.New("invalid label")
	ErrEmptyLabel    = errors.New("empty label")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// UserMessage returns the plain-language message carried by err, or a
// generic fallback when err has none.
func UserMessage(err error) string {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.UserMessage
	}
	return "Something went wrong. Re-run with --log-level debug for details."
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	return Classify(err) == OutcomeRetryable
}

// isFatal reports whether err belongs to a class that retrying cannot fix.
func isFatal(err error) bool {
	for _, target := range []error{
		ErrCircuitOpen,
		ErrParse,
		ErrMissingField,
		ErrCountMismatch,
		ErrInvalidLabel,
		ErrEmptyLabel,
		ErrInvalidConfig,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
