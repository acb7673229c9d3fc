// Package permanent marks notification failures that retrying cannot fix,
// such as rejected credentials or malformed payloads.
package permanent

import (
	"errors"
	"fmt"
)

// Marker is implemented by errors that know whether they are retryable.
type Marker interface {
	Permanent() bool
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

func (*permanentError) Permanent() bool {
	return true
}

// Mark wraps err so the notify retry loop stops at the first attempt.
// Params: source error.
// Returns: wrapped error, or nil for nil input.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Errorf formats a new permanent error; %w verbs wrap as in fmt.Errorf.
func Errorf(format string, args ...any) error {
	return Mark(fmt.Errorf(format, args...))
}

// Is reports whether any error in the chain carries a permanent marker.
func Is(err error) bool {
	var marker Marker
	return errors.As(err, &marker) && marker.Permanent()
}
