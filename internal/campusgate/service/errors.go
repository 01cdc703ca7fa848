package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
)

var (
	ErrInvalidGate = errors.New("invalid gate id")
	ErrUnavailable = errors.New("service temporarily unavailable")

	ErrNotFound          = store.ErrNotFound
	ErrAlreadyResolved   = store.ErrAlreadyResolved
	ErrIntegrityConflict = store.ErrIntegrityConflict
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rule a request broke.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// err returns nil when nothing was added, so callers can write
// `if err := v.err(); err != nil`.
func (e *ValidationError) err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalid(field, format string, args ...any) error {
	v := &ValidationError{}
	v.add(field, format, args...)
	return v
}

// NoEntryFoundError reports an exit scan with no open entry. The
// vehicle_mismatch alert it raised is already stored.
type NoEntryFoundError struct {
	Plate   string
	AlertID string
}

func (e *NoEntryFoundError) Error() string {
	return "no entry record found for license plate " + e.Plate
}

// TransientError wraps a persistence or dependency failure that is worth
// retrying. errors.Is(err, ErrUnavailable) holds for every TransientError.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool { return target == ErrUnavailable }

// classify passes domain outcomes through and marks everything else
// transient.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrAlreadyResolved),
		errors.Is(err, store.ErrIntegrityConflict):
		return err
	}
	return &TransientError{Op: op, Err: err}
}
