package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ReturnResult describes a processed return. Next is the head of the book's
// reservation queue, if anyone is waiting; it is only reported, not served.
type ReturnResult struct {
	Borrowing *Borrowing   `json:"borrowing"`
	Next      *Reservation `json:"next,omitempty"`
}

// BorrowBook checks bookID out to userID. Both the borrowing row and the cached
// book status are written in one transaction.
func (d *Database) BorrowBook(ctx context.Context, bookID, userID int64) (*Borrowing, error) {
	var created *Borrowing
	err := d.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		created, err = borrowBook(ctx, tx, bookID, userID, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ReturnBook closes an open borrowing and makes the book available again.
func (d *Database) ReturnBook(ctx context.Context, borrowingID int64) (*ReturnResult, error) {
	var result *ReturnResult
	err := d.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		result, err = returnBook(ctx, tx, borrowingID, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetBorrowing fetches a single borrowing with its book title and author.
func (d *Database) GetBorrowing(ctx context.Context, id int64) (*Borrowing, error) {
	var b Borrowing
	err := d.db.GetContext(ctx, &b, `
        SELECT bo.id, bo.book_id, bo.user_id, bo.borrow_date, bo.return_date, b.title, b.author
        FROM borrowings bo
        JOIN books b ON b.id = bo.book_id
        WHERE bo.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("borrowing %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetUserBorrowings lists the borrowings of a user. Without includeReturned only
// open borrowings are listed; with it the full history, newest first.
func (d *Database) GetUserBorrowings(ctx context.Context, userID int64, includeReturned bool) ([]*Borrowing, error) {
	query := `
        SELECT bo.id, bo.book_id, bo.user_id, bo.borrow_date, bo.return_date, b.title, b.author
        FROM borrowings bo
        JOIN books b ON b.id = bo.book_id
        WHERE bo.user_id = ?`
	if includeReturned {
		query += ` ORDER BY bo.borrow_date DESC, bo.id DESC`
	} else {
		query += ` AND bo.return_date IS NULL ORDER BY bo.borrow_date, bo.id`
	}

	borrowings := []*Borrowing{}
	if err := d.db.SelectContext(ctx, &borrowings, query, userID); err != nil {
		return nil, err
	}
	return borrowings, nil
}

// ---------------------------------------------------------------------------
// Transaction steps
// ---------------------------------------------------------------------------

func borrowBook(ctx context.Context, tx *sqlx.Tx, bookID, userID int64, now time.Time) (*Borrowing, error) {
	if err := requireRow(ctx, tx, "books", "book", bookID); err != nil {
		return nil, err
	}
	if err := requireUser(ctx, tx, userID); err != nil {
		return nil, err
	}

	holder, err := openBorrower(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}
	if holder != 0 {
		return nil, fmt.Errorf("book %d is currently not available: %w", bookID, ErrConflict)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO borrowings(book_id,user_id,borrow_date) VALUES(?,?,?)`, bookID, userID, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE books SET status=? WHERE id=?`, StatusBorrowed, bookID); err != nil {
		return nil, err
	}

	return &Borrowing{ID: id, BookID: bookID, UserID: userID, BorrowDate: now}, nil
}

func returnBook(ctx context.Context, tx *sqlx.Tx, borrowingID int64, now time.Time) (*ReturnResult, error) {
	var b Borrowing
	err := tx.GetContext(ctx, &b, `SELECT id,book_id,user_id,borrow_date,return_date FROM borrowings WHERE id=?`, borrowingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("borrowing record %d: %w", borrowingID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !b.Open() {
		return nil, fmt.Errorf("borrowing record %d was already returned: %w", borrowingID, ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE borrowings SET return_date=? WHERE id=?`, now, borrowingID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE books SET status=? WHERE id=?`, StatusAvailable, b.BookID); err != nil {
		return nil, err
	}
	b.ReturnDate = &now

	next, err := peekQueue(ctx, tx, b.BookID)
	if err != nil {
		return nil, err
	}
	return &ReturnResult{Borrowing: &b, Next: next}, nil
}

// openBorrower returns the user holding bookID, or 0 when the book is available.
func openBorrower(ctx context.Context, tx *sqlx.Tx, bookID int64) (int64, error) {
	var userID int64
	err := tx.GetContext(ctx, &userID, `SELECT user_id FROM borrowings WHERE book_id=? AND return_date IS NULL`, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return userID, err
}

// requireUser returns ErrUserNotFound unless the acting user still exists.
func requireUser(ctx context.Context, tx *sqlx.Tx, userID int64) error {
	err := requireRow(ctx, tx, "users", "user", userID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}
	return err
}

// requireRow returns ErrNotFound unless table has a row with the given id.
// table is always a constant from this package.
func requireRow(ctx context.Context, tx *sqlx.Tx, table, what string, id int64) error {
	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id=?)`, id); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}
