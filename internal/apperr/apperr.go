package apperr

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrPermission    = errors.New("permission denied")
	ErrStateConflict = errors.New("state conflict")
	ErrNotFound      = errors.New("not found")
	ErrPersistence   = errors.New("persistence error")
)

func Validation(format string, args ...any) error {
	return errors.Wrapf(ErrValidation, format, args...)
}

func Permission(format string, args ...any) error {
	return errors.Wrapf(ErrPermission, format, args...)
}

func Conflict(format string, args ...any) error {
	return errors.Wrapf(ErrStateConflict, format, args...)
}

func NotFound(format string, args ...any) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}

// persistenceError keeps the driver error reachable for errors.Is/As
// while still matching ErrPersistence.
type persistenceError struct {
	msg   string
	cause error
}

func (e *persistenceError) Error() string {
	if e.cause == nil {
		return e.msg + ": " + ErrPersistence.Error()
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *persistenceError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrPersistence}
	}
	return []error{ErrPersistence, e.cause}
}

// Persistence marks err as a store failure. Errors already classified
// (not found, conflict and so on) pass through unchanged.
func Persistence(err error, msg string) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return errors.Wrap(err, msg)
	}
	return &persistenceError{msg: msg, cause: err}
}

// RowsAffected is the error for a write that should have touched exactly one row.
func RowsAffected(what string, n int64) error {
	return &persistenceError{msg: fmt.Sprintf("%s: expected 1 row affected, got %d", what, n)}
}

func Classified(err error) bool {
	for _, target := range []error{ErrValidation, ErrPermission, ErrStateConflict, ErrNotFound, ErrPersistence} {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return false
}
