// Package web serves the library over HTTP: HTML pages for browsers, JSON for
// clients that ask for it, and form posts answered with a redirect plus a
// flash message.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"library-web/library"
)

// Options configures the HTTP layer.
type Options struct {
	SessionSecret []byte
	SessionTTL    time.Duration
	SecureCookies bool

	// AllowLibrarianSignup lets the registration form create librarian accounts.
	AllowLibrarianSignup bool
}

// Server wires the LibraryManager to echo routes.
type Server struct {
	echo     *echo.Echo
	lm       *library.LibraryManager
	sessions *sessions
	logger   *slog.Logger
	opts     Options
}

// New builds the server and registers all routes.
func New(lm *library.LibraryManager, opts Options, logger *slog.Logger) (*Server, error) {
	if len(opts.SessionSecret) == 0 {
		return nil, errors.New("session secret is required")
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	renderer, err := newTemplateRenderer()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.JSONSerializer = jsonSerializer{}

	s := &Server{
		echo: e,
		lm:   lm,
		sessions: &sessions{
			secret: opts.SessionSecret,
			ttl:    opts.SessionTTL,
			secure: opts.SecureCookies,
			now:    time.Now,
		},
		logger: logger,
		opts:   opts,
	}

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(s.loadIdentity)

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	e := s.echo
	librarian := s.requireRole(library.RoleLibrarian)
	member := s.requireRole(library.RoleMember)

	e.GET("/register", s.registerForm)
	e.POST("/register", s.register)
	e.GET("/login", s.loginForm)
	e.POST("/login", s.login)
	e.GET("/logout", s.logout)

	e.GET("/", s.home, s.requireLogin)
	e.GET("/profile", s.profile, s.requireLogin)
	e.POST("/profile", s.updateProfile, s.requireLogin)

	e.GET("/books", s.books, s.requireLogin)
	e.POST("/books", s.books, s.requireLogin)
	e.GET("/add_book", s.addBookForm, librarian)
	e.POST("/add_book", s.addBook, librarian)
	e.GET("/edit_book/:id", s.editBookForm, librarian)
	e.POST("/edit_book/:id", s.editBook, librarian)
	e.POST("/delete_book/:id", s.deleteBook, librarian)

	e.POST("/borrow_book/:id", s.borrowBook, member)
	e.POST("/return_book/:id", s.returnBook, librarian)
	e.GET("/my_books", s.myBooks, member)
	e.GET("/my_borrowed_books", s.myBorrowedBooks, member)

	e.POST("/reserve_book/:id", s.reserveBook, member)
	e.POST("/cancel_reservation/:id", s.cancelReservation, member)
	e.GET("/book_reservations/:id", s.bookReservations, librarian)
	e.GET("/my_reservations", s.myReservations, member)

	e.GET("/members", s.members, librarian)
	e.GET("/edit_member/:id", s.editMember, librarian)
	e.POST("/delete_member/:id", s.deleteMember, librarian)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// fail turns a library error into a flash message and a redirect to the list
// the user came from. Only unexpected errors are logged.
func (s *Server) fail(c echo.Context, to string, err error) error {
	switch {
	case errors.Is(err, library.ErrForbidden):
		return c.String(http.StatusForbidden, "Access Denied")
	case errors.Is(err, library.ErrUserNotFound):
		return s.endSession(c)
	case errors.Is(err, library.ErrNotFound):
		return redirect(c, to, flash(flashDanger, "The requested record does not exist."))
	case errors.Is(err, library.ErrConflict), errors.Is(err, library.ErrValidation):
		return redirect(c, to, flash(flashDanger, userMessage(err)))
	}
	s.logger.Error("request failed",
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		"path", c.Path(),
		"error", err)
	return redirect(c, to, flash(flashDanger, "An error occurred while processing your request."))
}

// endSession logs out a caller whose account was deleted after the session
// was issued.
func (s *Server) endSession(c echo.Context) error {
	s.sessions.clear(c)
	return redirect(c, "/login", flash(flashWarning, "Your account no longer exists."))
}

// userMessage strips the sentinel suffix so the flash reads naturally.
func userMessage(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "\n") {
		// Joined store error, not meant for users.
		return "The request conflicts with the current state of the library."
	}
	for _, sentinel := range []error{library.ErrConflict, library.ErrValidation} {
		msg = strings.TrimSuffix(msg, ": "+sentinel.Error())
	}
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}
