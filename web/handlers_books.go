package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"library-web/library"
)

func (s *Server) books(c echo.Context) error {
	pageNo, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || pageNo < 1 {
		pageNo = 1
	}
	result, err := s.lm.Books(c.Request().Context(), identityOf(c), c.FormValue("search"), pageNo)
	if err != nil {
		return s.fail(c, "/", err)
	}
	return render(c, http.StatusOK, "books.html", result)
}

func bookForm(c echo.Context) library.BookInput {
	return library.BookInput{
		Title:  c.FormValue("title"),
		Author: c.FormValue("author"),
		Genre:  c.FormValue("genre"),
	}
}

func (s *Server) addBookForm(c echo.Context) error {
	return render(c, http.StatusOK, "edit_book.html", (*library.Book)(nil))
}

func (s *Server) addBook(c echo.Context) error {
	if _, err := s.lm.AddBook(c.Request().Context(), identityOf(c), bookForm(c)); err != nil {
		return s.fail(c, "/add_book", err)
	}
	return redirect(c, "/books", flash(flashSuccess, "New book added."))
}

func (s *Server) editBookForm(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	book, err := s.lm.GetBook(c.Request().Context(), id)
	if errors.Is(err, library.ErrNotFound) {
		return redirect(c, "/books", flash(flashDanger, "The requested book does not exist."))
	}
	if err != nil {
		return s.fail(c, "/books", err)
	}
	return render(c, http.StatusOK, "edit_book.html", book)
}

func (s *Server) editBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.lm.UpdateBook(c.Request().Context(), identityOf(c), id, bookForm(c)); err != nil {
		if errors.Is(err, library.ErrValidation) {
			return s.fail(c, c.Request().URL.Path, err)
		}
		return s.fail(c, "/books", err)
	}
	return redirect(c, "/books", flash(flashSuccess, "Book has been updated."))
}

func (s *Server) deleteBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.lm.DeleteBook(c.Request().Context(), identityOf(c), id); err != nil {
		return s.fail(c, "/books", err)
	}
	return redirect(c, "/books", flash(flashSuccess, "Book has been deleted."))
}
