package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Database provides high-level helpers around a SQLite connection.
type Database struct {
	db *sqlx.DB

	insertBookStmt *sqlx.Stmt
	insertUserStmt *sqlx.Stmt
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies schema
// migrations, and prepares common statements.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// busy_timeout and foreign keys; every transaction takes the write lock up
	// front so a read-then-write inside it cannot interleave with another writer.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{db: db}
	if err := database.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return database, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	if d.insertBookStmt != nil {
		d.insertBookStmt.Close()
	}
	if d.insertUserStmt != nil {
		d.insertUserStmt.Close()
	}
	return d.db.Close()
}

// WithTx runs fn inside one transaction and commits when fn returns nil.
// A unique constraint violation anywhere in fn surfaces as ErrConflict.
func (d *Database) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		if isConstraintViolation(err) {
			return errors.Join(ErrConflict, err)
		}
		return err
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

// migrations[i] upgrades the schema from version i to i+1.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            role TEXT NOT NULL CHECK (role IN ('Librarian','Member')),
            name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            genre TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'Available' CHECK (status IN ('Available','Borrowed'))
        );`,
		`CREATE TABLE IF NOT EXISTS borrowings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
            user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            borrow_date DATETIME NOT NULL,
            return_date DATETIME
        );`,
		// At most one open borrowing per book.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_borrowings_open
            ON borrowings(book_id) WHERE return_date IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_borrowings_user ON borrowings(user_id);`,
		`CREATE TABLE IF NOT EXISTS reservations (
		    id INTEGER PRIMARY KEY AUTOINCREMENT,
		    book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		    reservation_date DATETIME NOT NULL,
		    queue_position INTEGER NOT NULL,
		    UNIQUE(book_id, user_id),
		    UNIQUE(book_id, queue_position)
		);`,
	},
	{
		// Next queue position per book; never decreases, so cancelled
		// positions are not handed out again.
		`ALTER TABLE books ADD COLUMN next_queue_position INTEGER NOT NULL DEFAULT 1;`,
		`UPDATE books SET next_queue_position =
            COALESCE((SELECT MAX(r.queue_position) FROM reservations r WHERE r.book_id = books.id), 0) + 1;`,
	},
}

var schemaVersion = len(migrations)

func applyMigrations(db *sqlx.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for version := current; version < schemaVersion; version++ {
		for _, stmt := range migrations[version] {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("apply migration %d: %w", version+1, err)
			}
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.insertBookStmt, err = d.db.Preparex(`INSERT INTO books(title,author,genre) VALUES(?,?,?)`); err != nil {
		return err
	}
	if d.insertUserStmt, err = d.db.Preparex(`INSERT INTO users(username,password_hash,role,name,email) VALUES(?,?,?,?,?)`); err != nil {
		return err
	}
	return nil
}
