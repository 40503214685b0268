package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"library-web/library"
)

func (s *Server) borrowBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	_, err = s.lm.Borrow(c.Request().Context(), identityOf(c), id)
	switch {
	case err == nil:
		return redirect(c, "/books", flash(flashSuccess, "You have successfully borrowed the book."))
	case errors.Is(err, library.ErrUserNotFound):
		return s.endSession(c)
	case errors.Is(err, library.ErrNotFound):
		return redirect(c, "/books", flash(flashDanger, "The requested book does not exist."))
	case errors.Is(err, library.ErrConflict):
		return redirect(c, "/books", flash(flashDanger, "This book is currently not available. You can reserve it instead."))
	}
	return s.fail(c, "/books", err)
}

// returnBook closes a borrowing. The optional "next" form value names a local
// page to go back to, e.g. the member page the return was made from.
func (s *Server) returnBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	to := localPath(c.FormValue("next"), "/books")

	result, err := s.lm.Return(c.Request().Context(), identityOf(c), id)
	switch {
	case errors.Is(err, library.ErrNotFound):
		return redirect(c, to, flash(flashDanger, "Borrowing record not found."))
	case errors.Is(err, library.ErrConflict):
		return redirect(c, to, flash(flashWarning, "This book has already been returned."))
	case err != nil:
		return s.fail(c, to, err)
	}

	var messages []flashMessage
	if next := result.Next; next != nil {
		messages = append(messages, flash(flashInfo,
			fmt.Sprintf("Book is now available for %s (queue position %d).", displayName(next), next.QueuePosition)))
	}
	messages = append(messages, flash(flashSuccess, "Book returned successfully."))
	return redirect(c, to, messages...)
}

func (s *Server) myBooks(c echo.Context) error {
	borrowings, err := s.lm.MyBorrowings(c.Request().Context(), identityOf(c), false)
	if err != nil {
		return s.fail(c, "/", err)
	}
	return render(c, http.StatusOK, "my_books.html", borrowings)
}

func (s *Server) myBorrowedBooks(c echo.Context) error {
	borrowings, err := s.lm.MyBorrowings(c.Request().Context(), identityOf(c), true)
	if err != nil {
		return s.fail(c, "/", err)
	}
	return render(c, http.StatusOK, "my_borrowed_books.html", borrowings)
}

func (s *Server) reserveBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	reservation, err := s.lm.Reserve(c.Request().Context(), identityOf(c), id)
	switch {
	case err == nil:
		return redirect(c, "/books", flash(flashSuccess,
			fmt.Sprintf("You have reserved the book. Your queue position is %d.", reservation.QueuePosition)))
	case errors.Is(err, library.ErrBookAvailable):
		return redirect(c, "/books", flash(flashInfo, "The book is available! You can borrow it directly."))
	case errors.Is(err, library.ErrAlreadyReserved):
		return redirect(c, "/books", flash(flashWarning, "You have already reserved this book."))
	case errors.Is(err, library.ErrAlreadyBorrowing):
		return redirect(c, "/books", flash(flashWarning, "You already have this book checked out."))
	case errors.Is(err, library.ErrUserNotFound):
		return s.endSession(c)
	case errors.Is(err, library.ErrNotFound):
		return redirect(c, "/books", flash(flashDanger, "The requested book does not exist."))
	}
	return s.fail(c, "/books", err)
}

func (s *Server) cancelReservation(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	err = s.lm.CancelReservation(c.Request().Context(), identityOf(c), id)
	if errors.Is(err, library.ErrNotFound) {
		return redirect(c, "/my_reservations", flash(flashWarning, "You have no reservation for this book."))
	}
	if err != nil {
		return s.fail(c, "/my_reservations", err)
	}
	return redirect(c, "/my_reservations", flash(flashSuccess, "Your reservation has been cancelled."))
}

type bookReservationsView struct {
	Book         *library.Book          `json:"book"`
	Reservations []*library.Reservation `json:"reservations"`
}

func (s *Server) bookReservations(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	book, reservations, err := s.lm.BookReservations(c.Request().Context(), identityOf(c), id)
	if errors.Is(err, library.ErrNotFound) {
		return redirect(c, "/books", flash(flashDanger, "The requested book does not exist."))
	}
	if err != nil {
		return s.fail(c, "/books", err)
	}
	return render(c, http.StatusOK, "book_reservations.html", bookReservationsView{Book: book, Reservations: reservations})
}

func (s *Server) myReservations(c echo.Context) error {
	reservations, err := s.lm.MyReservations(c.Request().Context(), identityOf(c))
	if err != nil {
		return s.fail(c, "/", err)
	}
	return render(c, http.StatusOK, "my_reservations.html", reservations)
}

func displayName(r *library.Reservation) string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("user %d", r.UserID)
}

// localPath accepts only same-site absolute paths.
func localPath(p, fallback string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, `\`) {
		return fallback
	}
	return p
}
