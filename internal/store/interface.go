package store

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Store methods matches exactly one of
// these through errors.Is.
var (
	// ErrValidation is returned for requests with missing identity fields.
	ErrValidation = errors.New("validation failed")

	// ErrIO is returned when reading, writing or renaming a file fails.
	// The on-disk book is left as it was before the operation.
	ErrIO = errors.New("i/o failure")

	// ErrCorrupt is returned when an existing database file cannot be decoded.
	ErrCorrupt = errors.New("corrupt database")

	// ErrLocked is returned when the database lock could not be acquired
	// within the configured timeout.
	ErrLocked = errors.New("database locked")
)

// OpError describes a failed store operation.
type OpError struct {
	Op   string // add_entry, delete_entry, ...
	Path string // database file
	Kind error  // one of ErrValidation, ErrIO, ErrCorrupt, ErrLocked
	Err  error  // underlying cause
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// DecodeError reports malformed or truncated book data.
type DecodeError struct {
	Offset int // byte offset in the uncompressed body, or -1 for header errors
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := e.Reason
	if e.Offset >= 0 {
		msg = fmt.Sprintf("at body offset %d: %s", e.Offset, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "decode book: " + msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is reports DecodeError as ErrCorrupt.
func (e *DecodeError) Is(target error) bool { return target == ErrCorrupt }

func headerError(reason string, err error) *DecodeError {
	return &DecodeError{Offset: -1, Reason: reason, Err: err}
}
