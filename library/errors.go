package library

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned for unknown book, user, borrowing or reservation ids.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the requested change collides with current state.
	ErrConflict = errors.New("conflict")

	// ErrForbidden is returned when the caller's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is returned for missing or malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCredentials is returned for an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrAlreadyReserved  = fmt.Errorf("you have already reserved this book: %w", ErrConflict)
	ErrAlreadyBorrowing = fmt.Errorf("you already have this book checked out: %w", ErrConflict)

	// ErrUserNotFound wraps ErrNotFound for an acting user whose account no
	// longer exists, e.g. deleted while a session still names it.
	ErrUserNotFound = fmt.Errorf("user account does not exist: %w", ErrNotFound)

	// ErrBookAvailable rejects a reservation for a book nobody holds.
	ErrBookAvailable = errors.New("the book is available, borrow it directly")
)

// isConstraintViolation reports whether err is a UNIQUE or PRIMARY KEY violation.
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// isBusy reports whether err means another connection holds the write lock.
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}
