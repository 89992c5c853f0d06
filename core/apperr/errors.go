package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the membership and entity state machines. Callers
// classify with errors.Is and map to HTTP statuses at the transport layer.
var (
	ErrNotFound           = errors.New("not found")
	ErrAuthorization      = errors.New("not authorized")
	ErrAlreadyMember      = errors.New("user is already a member")
	ErrNotInvited         = errors.New("user has not been invited")
	ErrNotRequested       = errors.New("user has not requested access")
	ErrInvariantViolation = errors.New("invariant violation")
)

// ValidationError reports one or more invalid fields. All problems found are
// collected rather than stopping at the first.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// NewValidation builds a ValidationError from the given problems.
func NewValidation(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// MalformedIndexError reports every position in a sequence whose order key
// was missing or not an integer.
type MalformedIndexError struct {
	Key       string
	Positions []int
}

func (e *MalformedIndexError) Error() string {
	return fmt.Sprintf("malformed %q key at positions %v", e.Key, e.Positions)
}

// NotFound wraps ErrNotFound with a description of what was missing.
func NotFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}

// PersistenceError marks a storage failure. The operation is considered
// failed and is not retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence wraps err as a PersistenceError, or returns nil if err is nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
