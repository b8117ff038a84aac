package database

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by lookups for an id with no record.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition is returned when an update would move a record
	// along an edge the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// PersistenceError wraps a storage failure with the operation and record id.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, ID: id, Err: err}
}
