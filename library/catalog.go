package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
)

// DefaultPageSize is the number of books on one catalog page.
const DefaultPageSize = 5

const dialectSQLite = "sqlite3"

// BookInput is the add/edit form of a book.
type BookInput struct {
	Title  string
	Author string
	Genre  string
}

func (in BookInput) validate() error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Author) == "" {
		return fmt.Errorf("title and author are required: %w", ErrValidation)
	}
	return nil
}

// bookSelect reads books with the status derived from open borrowings rather
// than the cached status column.
func bookSelect() *goqu.SelectDataset {
	return goqu.Dialect(dialectSQLite).
		From(goqu.T("books").As("b")).
		Select(
			goqu.I("b.id"),
			goqu.I("b.title"),
			goqu.I("b.author"),
			goqu.I("b.genre"),
			goqu.L(`CASE WHEN EXISTS(SELECT 1 FROM borrowings bo WHERE bo.book_id = b.id AND bo.return_date IS NULL) THEN ? ELSE ? END`,
				string(StatusBorrowed), string(StatusAvailable)).As("status"),
			goqu.L(`COALESCE((SELECT bo.user_id FROM borrowings bo WHERE bo.book_id = b.id AND bo.return_date IS NULL), 0)`).As("borrowed_by"),
		)
}

func searchFilter(search string) exp.Expression {
	pattern := "%" + search + "%"
	return goqu.Or(
		goqu.I("b.title").Like(pattern),
		goqu.I("b.author").Like(pattern),
		goqu.I("b.genre").Like(pattern),
	)
}

// SearchBooks returns one page of books whose title, author or genre contains
// search. Pages are 1-based; an out-of-range page yields an empty book list.
func (d *Database) SearchBooks(ctx context.Context, search string, page, perPage int) (*BookPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPageSize
	}
	search = strings.TrimSpace(search)

	countDS := goqu.Dialect(dialectSQLite).From(goqu.T("books").As("b")).Select(goqu.COUNT("*"))
	listDS := bookSelect().Order(goqu.I("b.id").Asc())
	if search != "" {
		countDS = countDS.Where(searchFilter(search))
		listDS = listDS.Where(searchFilter(search))
	}
	listDS = listDS.Limit(uint(perPage)).Offset(uint((page - 1) * perPage))

	countSQL, countArgs, err := countDS.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build count query: %w", err)
	}
	listSQL, listArgs, err := listDS.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	result := &BookPage{Books: []*Book{}, Search: search, Page: page}
	if err := d.db.GetContext(ctx, &result.Total, countSQL, countArgs...); err != nil {
		return nil, err
	}
	if err := d.db.SelectContext(ctx, &result.Books, listSQL, listArgs...); err != nil {
		return nil, err
	}
	result.TotalPages = max(1, (result.Total+perPage-1)/perPage)
	return result, nil
}

// GetBook fetches a single book with its derived status.
func (d *Database) GetBook(ctx context.Context, id int64) (*Book, error) {
	query, args, err := bookSelect().Where(goqu.I("b.id").Eq(id)).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build book query: %w", err)
	}
	var b Book
	err = d.db.GetContext(ctx, &b, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// AddBook inserts a new, available book.
func (d *Database) AddBook(ctx context.Context, in BookInput) (int64, error) {
	if err := in.validate(); err != nil {
		return 0, err
	}
	res, err := d.insertBookStmt.ExecContext(ctx,
		strings.TrimSpace(in.Title), strings.TrimSpace(in.Author), strings.TrimSpace(in.Genre))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateBook replaces title, author and genre of a book.
func (d *Database) UpdateBook(ctx context.Context, id int64, in BookInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx, `UPDATE books SET title=?, author=?, genre=? WHERE id=?`,
		strings.TrimSpace(in.Title), strings.TrimSpace(in.Author), strings.TrimSpace(in.Genre), id)
	if err != nil {
		return err
	}
	return expectAffected(res, "book", id)
}

// DeleteBook removes a book together with its borrowings and reservations.
func (d *Database) DeleteBook(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM books WHERE id=?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res, "book", id)
}
