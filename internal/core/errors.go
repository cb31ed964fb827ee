package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflicting transaction hash")
	ErrInvalidRange = errors.New("invalid range: at least one bound is required")
	ErrPattern      = errors.New("invalid rule pattern")
	ErrStorage      = errors.New("storage failure")
)

// PatternError is returned when a rule's regular expression does not compile.
type PatternError struct {
	RuleID  int64
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("rule %d: invalid pattern %q: %v", e.RuleID, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

func (e *PatternError) Is(target error) bool { return target == ErrPattern }

// StorageError wraps a persistence failure so callers can match ErrStorage
// without seeing the driver error type.
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStorage, err)
}

// NotFound wraps ErrNotFound with the missing entity.
func NotFound(entity string, id any) error {
	return fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)
}
