// Package remote carries the error type shared by every outbound HTTP
// client in the bridge, so callers can tell "the remote was unreachable"
// apart from a remote that answered with an application error.
package remote

import (
	"errors"
	"fmt"
)

// Error marks a timeout or connection failure against a named remote.
type Error struct {
	Remote string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Remote, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Unavailable wraps err as an unavailability failure of the given remote.
func Unavailable(remoteName, op string, err error) error {
	return &Error{Remote: remoteName, Op: op, Err: err}
}

// IsUnavailable reports whether err is (or wraps) a remote availability
// failure.
func IsUnavailable(err error) bool {
	var re *Error
	return errors.As(err, &re)
}
