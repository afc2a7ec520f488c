package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a write that lost against a concurrent transaction.
	ErrConflict = errors.New("conflict")
)

const (
	sqliteBusyCode       = 5
	sqliteLockedCode     = 6
	sqliteConstraintCode = 19
)

var pgConflictStates = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"23505": {}, // unique_violation
	"23503": {}, // foreign_key_violation
	"23514": {}, // check_violation
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// classify tags driver errors caused by concurrent transactions with ErrConflict.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := pgConflictStates[pgErr.SQLState()]; ok {
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return err
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		switch coder.Code() & 0xff {
		case sqliteBusyCode, sqliteLockedCode, sqliteConstraintCode:
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
	}
	return err
}
