package chatwoot

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by lookups that require an existing record.
// Deletion of an unknown record is not an error.
var ErrNotFound = errors.New("not found")

// ValidationError marks bad or missing input. Never retried, surfaced as
// a client error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError marks a storage-layer failure. Always propagated to
// the caller, never swallowed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// TeamNotFoundError is the definitive miss after the bounded refresh
// retry. It lists the currently known team names to aid the caller.
type TeamNotFoundError struct {
	Name  string
	Known []string
}

func (e *TeamNotFoundError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("team %q not found", e.Name)
	}
	return fmt.Sprintf("team %q not found, available teams: %s", e.Name, strings.Join(e.Known, ", "))
}
