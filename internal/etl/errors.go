package etl

import (
	"errors"
	"fmt"
)

// ErrRunLocked means another migration of the same kind holds the run lock.
var ErrRunLocked = errors.New("another migration run holds the lock")

// ValidationError marks a record that cannot be imported. It is counted as
// skipped, never as an error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// WriteError is a store rejecting a create or update.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
