package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"campusconnect/apperr"
)

// Storage sentinels. Driver errors are translated into these once, here,
// so nothing above this package looks at sqlite result codes.
var (
	ErrNotFound            = errors.New("db: record not found")
	ErrDuplicateKey        = errors.New("db: duplicate key")
	ErrForeignKeyViolation = errors.New("db: foreign key violation")
	ErrCheckViolation      = errors.New("db: check constraint violation")
	ErrBusy                = errors.New("db: database busy")
	ErrTimeout             = errors.New("db: query timeout")
)

func IsNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsDuplicateKey(err error) bool        { return errors.Is(err, ErrDuplicateKey) }
func IsForeignKeyViolation(err error) bool { return errors.Is(err, ErrForeignKeyViolation) }
func IsCheckViolation(err error) bool      { return errors.Is(err, ErrCheckViolation) }

// Error pairs a storage sentinel with the original driver error.
type Error struct {
	Sentinel error
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (cause: %v)", e.Sentinel, e.Cause)
}

func (e *Error) Is(target error) bool { return e.Sentinel == target }
func (e *Error) Unwrap() error        { return e.Cause }

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var dbe *Error
	if errors.As(err, &dbe) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Sentinel: ErrNotFound, Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Sentinel: ErrTimeout, Cause: err}
	}

	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return &Error{Sentinel: ErrDuplicateKey, Cause: err}
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return &Error{Sentinel: ErrForeignKeyViolation, Cause: err}
	case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_TRIGGER:
		return &Error{Sentinel: ErrCheckViolation, Cause: err}
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return &Error{Sentinel: ErrBusy, Cause: err}
	case sqlite3.SQLITE_INTERRUPT:
		return &Error{Sentinel: ErrTimeout, Cause: err}
	}
	return err
}

// uniqueOn reports whether err is a unique violation on table.column.
func uniqueOn(err error, column string) bool {
	return IsDuplicateKey(err) && strings.Contains(err.Error(), column)
}

// failure converts an unexpected storage error into an application error.
// Timeouts and lock contention are reported as retryable.
func failure(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrBusy) {
		return apperr.Wrap(apperr.KindTimeout, "The request timed out, please retry", fmt.Errorf("%s: %w", op, err))
	}
	return apperr.Wrap(apperr.KindInternal, op, err)
}
