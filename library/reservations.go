package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ReserveBook puts userID at the end of the waiting queue of bookID.
//
// Only books somebody currently holds can be reserved, and a user holds at most
// one reservation per book. Positions come from the book's next_queue_position
// counter, so they strictly increase per book even after the tail of the queue
// is cancelled; the queue is never renumbered.
func (d *Database) ReserveBook(ctx context.Context, bookID, userID int64) (*Reservation, error) {
	var created *Reservation
	err := d.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		created, err = reserveBook(ctx, tx, bookID, userID, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetBookReservations returns the queue of a book with requester name and email.
func (d *Database) GetBookReservations(ctx context.Context, bookID int64) ([]*Reservation, error) {
	var exists bool
	if err := d.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM books WHERE id=?)`, bookID); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("book %d: %w", bookID, ErrNotFound)
	}

	reservations := []*Reservation{}
	err := d.db.SelectContext(ctx, &reservations, `
        SELECT r.id, r.book_id, r.user_id, r.reservation_date, r.queue_position, u.name, u.email
        FROM reservations r
        JOIN users u ON u.id = r.user_id
        WHERE r.book_id = ?
        ORDER BY r.queue_position ASC`, bookID)
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

// GetUserReservations returns the reservations of a user with book title and author.
func (d *Database) GetUserReservations(ctx context.Context, userID int64) ([]*Reservation, error) {
	reservations := []*Reservation{}
	err := d.db.SelectContext(ctx, &reservations, `
        SELECT r.id, r.book_id, r.user_id, r.reservation_date, r.queue_position, b.title, b.author
        FROM reservations r
        JOIN books b ON b.id = r.book_id
        WHERE r.user_id = ?
        ORDER BY r.queue_position ASC, r.id ASC`, userID)
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

// CancelReservation deletes the reservation of userID for bookID.
func (d *Database) CancelReservation(ctx context.Context, bookID, userID int64) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM reservations WHERE book_id=? AND user_id=?`, bookID, userID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("no reservation found for user %d on book %d: %w", userID, bookID, ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Transaction steps
// ---------------------------------------------------------------------------

func reserveBook(ctx context.Context, tx *sqlx.Tx, bookID, userID int64, now time.Time) (*Reservation, error) {
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
	if holder == 0 {
		return nil, ErrBookAvailable
	}
	if holder == userID {
		return nil, ErrAlreadyBorrowing
	}

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM reservations WHERE book_id=? AND user_id=?)`, bookID, userID); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyReserved
	}

	var position int
	if err := tx.GetContext(ctx, &position, `SELECT next_queue_position FROM books WHERE id=?`, bookID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE books SET next_queue_position=? WHERE id=?`, position+1, bookID); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO reservations(book_id,user_id,reservation_date,queue_position) VALUES(?,?,?,?)`,
		bookID, userID, now, position)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &Reservation{ID: id, BookID: bookID, UserID: userID, ReservationDate: now, QueuePosition: position}, nil
}

// peekQueue returns the reservation with the lowest position for bookID, or nil.
func peekQueue(ctx context.Context, tx *sqlx.Tx, bookID int64) (*Reservation, error) {
	var r Reservation
	err := tx.GetContext(ctx, &r, `
        SELECT r.id, r.book_id, r.user_id, r.reservation_date, r.queue_position, u.name, u.email
        FROM reservations r
        JOIN users u ON u.id = r.user_id
        WHERE r.book_id = ?
        ORDER BY r.queue_position ASC
        LIMIT 1`, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
