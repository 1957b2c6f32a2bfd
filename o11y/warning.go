package o11y

import (
	"context"
	"errors"
)

// warning is the sentinel every warning error wraps, so IsWarning can find
// it anywhere in a chain.
var warning = errors.New("")

// NewWarning returns an error that IsWarning reports true for. Each call
// returns a distinct error, two warnings never compare equal under Is.
func NewWarning(msg string) error {
	return &warnError{msg: msg}
}

// IsWarning reports whether any error in the chain is a warning.
func IsWarning(err error) bool {
	return errors.Is(err, warning)
}

// DontErrorTrace reports whether the whole chain is benign, that is a
// warning or a context cancellation or deadline. Spans for such errors are
// not marked as errors.
func DontErrorTrace(err error) bool {
	return IsWarning(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type warnError struct {
	msg string
}

func (e *warnError) Error() string {
	return e.msg
}

func (e *warnError) Unwrap() error {
	return warning
}
