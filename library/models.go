package library

import "time"

// BookStatus is the availability of a book. It is derived from open borrowings;
// the `status` column in the books table only caches it.
type BookStatus string

const (
	StatusAvailable BookStatus = "Available"
	StatusBorrowed  BookStatus = "Borrowed"
)

// Book represents catalog metadata and current availability of a book.
type Book struct {
	ID         int64      `db:"id" json:"id"`
	Title      string     `db:"title" json:"title"`
	Author     string     `db:"author" json:"author"`
	Genre      string     `db:"genre" json:"genre"`
	Status     BookStatus `db:"status" json:"status"`
	BorrowedBy int64      `db:"borrowed_by" json:"borrowed_by,omitempty"`
}

// Available reports whether nobody currently holds the book.
func (b *Book) Available() bool { return b.Status == StatusAvailable }

// BookPage is one page of a catalog search.
type BookPage struct {
	Books      []*Book `json:"books"`
	Search     string  `json:"search"`
	Page       int     `json:"page"`
	TotalPages int     `json:"total_pages"`
	Total      int     `json:"total"`
}

// User is a registered account, either a librarian or a member.
type User struct {
	ID           int64  `db:"id" json:"id"`
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password_hash" json:"-"` // Don't serialize password hash
	Role         Role   `db:"role" json:"role"`
	Name         string `db:"name" json:"name"`
	Email        string `db:"email" json:"email"`
}

// Borrowing is one checkout of a book. ReturnDate is nil while the book is out.
type Borrowing struct {
	ID         int64      `db:"id" json:"id"`
	BookID     int64      `db:"book_id" json:"book_id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	BorrowDate time.Time  `db:"borrow_date" json:"borrow_date"`
	ReturnDate *time.Time `db:"return_date" json:"return_date,omitempty"`

	// Joined columns, filled by listing queries only.
	Title  string `db:"title" json:"title,omitempty"`
	Author string `db:"author" json:"author,omitempty"`
}

// Open reports whether the book has not been returned yet.
func (b *Borrowing) Open() bool { return b.ReturnDate == nil }

// Reservation is a member's place in the waiting queue of a book.
type Reservation struct {
	ID              int64     `db:"id" json:"id"`
	BookID          int64     `db:"book_id" json:"book_id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	ReservationDate time.Time `db:"reservation_date" json:"reservation_date"`
	QueuePosition   int       `db:"queue_position" json:"queue_position"`

	// Joined columns: requester for per-book listings, book for per-user listings.
	Name   string `db:"name" json:"name,omitempty"`
	Email  string `db:"email" json:"email,omitempty"`
	Title  string `db:"title" json:"title,omitempty"`
	Author string `db:"author" json:"author,omitempty"`
}

// Member is a member account together with its borrowing history.
type Member struct {
	User
	Borrowed []*Borrowing `json:"borrowed_books"`
	Returned []*Borrowing `json:"returned_books"`
}
