package ownership

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies oracle failures.
type ErrorCategory string

const (
	ErrorTimeout     ErrorCategory = "timeout"
	ErrorUnavailable ErrorCategory = "unavailable"
	ErrorBadData     ErrorCategory = "bad_data"
	ErrorCircuitOpen ErrorCategory = "circuit_open"
)

// Error is an ownership query failure. Callers must treat it as "unknown",
// never as "owns nothing".
type Error struct {
	Category ErrorCategory
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ownership query %s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("ownership query %s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether a later attempt may succeed.
func (e *Error) Retryable() bool {
	return e.Category != ErrorBadData
}

func NewError(category ErrorCategory, message string, err error) *Error {
	return &Error{Category: category, Message: message, Err: err}
}

// IsQueryError reports whether err is an oracle failure.
func IsQueryError(err error) bool {
	var oe *Error
	return errors.As(err, &oe)
}

func asQueryError(err error, target **Error) bool {
	return errors.As(err, target)
}
