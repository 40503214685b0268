package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// LibraryManager is the entry point of the web and CLI layers. Every operation
// takes the caller Identity explicitly and checks its role before touching the
// Database.
type LibraryManager struct {
	db       *Database
	logger   *slog.Logger
	pageSize int
	retry    []RetryOption
}

// ManagerOption configures a LibraryManager.
type ManagerOption func(*LibraryManager)

// WithLogger sets the logger for state changes. The default discards output.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(lm *LibraryManager) {
		if logger != nil {
			lm.logger = logger
		}
	}
}

// WithPageSize sets the number of books per catalog page.
func WithPageSize(n int) ManagerOption {
	return func(lm *LibraryManager) {
		if n > 0 {
			lm.pageSize = n
		}
	}
}

// WithRetry configures the retry of writes that hit a locked database.
func WithRetry(options ...RetryOption) ManagerOption {
	return func(lm *LibraryManager) { lm.retry = options }
}

// NewLibraryManager opens (or creates) the SQLite database at dbPath.
func NewLibraryManager(dbPath string, options ...ManagerOption) (*LibraryManager, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	lm := &LibraryManager{
		db:       db,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		pageSize: DefaultPageSize,
	}
	for _, option := range options {
		option(lm)
	}
	return lm, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// ------------------ Accounts ------------------

// Register creates a user account. Anyone may register.
func (lm *LibraryManager) Register(ctx context.Context, in RegisterInput) (int64, error) {
	id, err := lm.db.CreateUser(ctx, in)
	if err != nil {
		return 0, err
	}
	lm.logger.Info("user registered", "user_id", id, "username", in.Username, "role", in.Role)
	return id, nil
}

func (lm *LibraryManager) Login(ctx context.Context, username, password string) (Identity, error) {
	return lm.db.Authenticate(ctx, username, password)
}

// ResetPassword is an operator action of the CLI.
func (lm *LibraryManager) ResetPassword(ctx context.Context, userID int64, password string) error {
	if err := lm.db.ResetPassword(ctx, userID, password); err != nil {
		return err
	}
	lm.logger.Info("password reset", "user_id", userID)
	return nil
}

// Profile is a user together with the books they currently hold.
type Profile struct {
	User     *User        `json:"user"`
	Borrowed []*Borrowing `json:"borrowed_books"`
}

func (lm *LibraryManager) Profile(ctx context.Context, caller Identity) (*Profile, error) {
	if caller.Anonymous() {
		return nil, fmt.Errorf("login required: %w", ErrForbidden)
	}
	user, err := lm.db.GetUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	borrowed, err := lm.db.GetUserBorrowings(ctx, caller.UserID, false)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Borrowed: borrowed}, nil
}

func (lm *LibraryManager) UpdateProfile(ctx context.Context, caller Identity, name, email string) error {
	if caller.Anonymous() {
		return fmt.Errorf("login required: %w", ErrForbidden)
	}
	return lm.db.UpdateProfile(ctx, caller.UserID, name, email)
}

// ------------------ Members ------------------

func (lm *LibraryManager) Members(ctx context.Context, caller Identity) ([]*Member, error) {
	if err := caller.Require(RoleLibrarian); err != nil {
		return nil, err
	}
	return lm.db.GetMembers(ctx)
}

// MemberDetail returns a user with open borrowings (which a librarian can
// close) and returned ones, newest first.
func (lm *LibraryManager) MemberDetail(ctx context.Context, caller Identity, memberID int64) (*Member, error) {
	if err := caller.Require(RoleLibrarian); err != nil {
		return nil, err
	}
	user, err := lm.db.GetUser(ctx, memberID)
	if errors.Is(err, ErrNotFound) {
		// The caller still exists; only the member is missing.
		return nil, fmt.Errorf("member %d: %w", memberID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	history, err := lm.db.GetUserBorrowings(ctx, memberID, true)
	if err != nil {
		return nil, err
	}
	return groupMembers([]User{*user}, history)[0], nil
}

func (lm *LibraryManager) DeleteMember(ctx context.Context, caller Identity, memberID int64) error {
	if err := caller.Require(RoleLibrarian); err != nil {
		return err
	}
	if err := lm.db.DeleteUser(ctx, memberID); err != nil {
		return err
	}
	lm.logger.Info("member deleted", "user_id", memberID, "by", caller.UserID)
	return nil
}

// ------------------ Catalog ------------------

// Catalog returns a page of the catalog without an access check; the CLI uses it directly.
func (lm *LibraryManager) Catalog(ctx context.Context, search string, page, perPage int) (*BookPage, error) {
	return lm.db.SearchBooks(ctx, search, page, perPage)
}

// Books returns a page of the catalog to any logged-in user.
func (lm *LibraryManager) Books(ctx context.Context, caller Identity, search string, page int) (*BookPage, error) {
	if caller.Anonymous() {
		return nil, fmt.Errorf("login required: %w", ErrForbidden)
	}
	return lm.db.SearchBooks(ctx, search, page, lm.pageSize)
}

func (lm *LibraryManager) GetBook(ctx context.Context, bookID int64) (*Book, error) {
	return lm.db.GetBook(ctx, bookID)
}

// ImportBook adds a book on behalf of the operator running the import tool.
func (lm *LibraryManager) ImportBook(ctx context.Context, in BookInput) (int64, error) {
	return lm.db.AddBook(ctx, in)
}

func (lm *LibraryManager) AddBook(ctx context.Context, caller Identity, in BookInput) (int64, error) {
	if err := caller.Require(RoleLibrarian); err != nil {
		return 0, err
	}
	id, err := lm.db.AddBook(ctx, in)
	if err != nil {
		return 0, err
	}
	lm.logger.Info("book added", "book_id", id, "title", in.Title)
	return id, nil
}

func (lm *LibraryManager) UpdateBook(ctx context.Context, caller Identity, bookID int64, in BookInput) error {
	if err := caller.Require(RoleLibrarian); err != nil {
		return err
	}
	return lm.db.UpdateBook(ctx, bookID, in)
}

func (lm *LibraryManager) DeleteBook(ctx context.Context, caller Identity, bookID int64) error {
	if err := caller.Require(RoleLibrarian); err != nil {
		return err
	}
	if err := lm.db.DeleteBook(ctx, bookID); err != nil {
		return err
	}
	lm.logger.Info("book deleted", "book_id", bookID)
	return nil
}

// ------------------ Circulation ------------------

// Borrow checks a book out to the calling member.
func (lm *LibraryManager) Borrow(ctx context.Context, caller Identity, bookID int64) (*Borrowing, error) {
	if err := caller.Require(RoleMember); err != nil {
		return nil, err
	}
	var borrowing *Borrowing
	err := retryOnBusy(ctx, func(ctx context.Context) error {
		var err error
		borrowing, err = lm.db.BorrowBook(ctx, bookID, caller.UserID)
		return err
	}, lm.retry...)
	if err != nil {
		return nil, err
	}
	lm.logger.Info("book borrowed", "book_id", bookID, "user_id", caller.UserID, "borrowing_id", borrowing.ID)
	return borrowing, nil
}

// Return closes a borrowing on behalf of a librarian.
func (lm *LibraryManager) Return(ctx context.Context, caller Identity, borrowingID int64) (*ReturnResult, error) {
	if err := caller.Require(RoleLibrarian); err != nil {
		return nil, err
	}
	var result *ReturnResult
	err := retryOnBusy(ctx, func(ctx context.Context) error {
		var err error
		result, err = lm.db.ReturnBook(ctx, borrowingID)
		return err
	}, lm.retry...)
	if err != nil {
		return nil, err
	}

	attrs := []any{"book_id", result.Borrowing.BookID, "borrowing_id", borrowingID}
	if result.Next != nil {
		attrs = append(attrs, "next_user_id", result.Next.UserID, "next_queue_position", result.Next.QueuePosition)
	}
	lm.logger.Info("book returned", attrs...)
	return result, nil
}

// ------------------ Reservations ------------------

// Reserve queues the calling member for a borrowed book.
func (lm *LibraryManager) Reserve(ctx context.Context, caller Identity, bookID int64) (*Reservation, error) {
	if err := caller.Require(RoleMember); err != nil {
		return nil, err
	}
	var reservation *Reservation
	err := retryOnBusy(ctx, func(ctx context.Context) error {
		var err error
		reservation, err = lm.db.ReserveBook(ctx, bookID, caller.UserID)
		return err
	}, lm.retry...)
	if err != nil {
		return nil, err
	}
	lm.logger.Info("book reserved", "book_id", bookID, "user_id", caller.UserID, "queue_position", reservation.QueuePosition)
	return reservation, nil
}

func (lm *LibraryManager) CancelReservation(ctx context.Context, caller Identity, bookID int64) error {
	if err := caller.Require(RoleMember); err != nil {
		return err
	}
	if err := lm.db.CancelReservation(ctx, bookID, caller.UserID); err != nil {
		return err
	}
	lm.logger.Info("reservation cancelled", "book_id", bookID, "user_id", caller.UserID)
	return nil
}

// BookReservations returns a book and its waiting queue, lowest position first.
func (lm *LibraryManager) BookReservations(ctx context.Context, caller Identity, bookID int64) (*Book, []*Reservation, error) {
	if err := caller.Require(RoleLibrarian); err != nil {
		return nil, nil, err
	}
	book, err := lm.db.GetBook(ctx, bookID)
	if err != nil {
		return nil, nil, err
	}
	reservations, err := lm.db.GetBookReservations(ctx, bookID)
	if err != nil {
		return nil, nil, err
	}
	return book, reservations, nil
}

func (lm *LibraryManager) MyReservations(ctx context.Context, caller Identity) ([]*Reservation, error) {
	if err := caller.Require(RoleMember); err != nil {
		return nil, err
	}
	return lm.db.GetUserReservations(ctx, caller.UserID)
}

// MyBorrowings lists the caller's open borrowings, or the whole history.
func (lm *LibraryManager) MyBorrowings(ctx context.Context, caller Identity, includeReturned bool) ([]*Borrowing, error) {
	if err := caller.Require(RoleMember); err != nil {
		return nil, err
	}
	return lm.db.GetUserBorrowings(ctx, caller.UserID, includeReturned)
}
