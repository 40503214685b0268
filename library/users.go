package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// RegisterInput is the registration form.
type RegisterInput struct {
	Username string
	Password string
	Role     string
	Name     string
	Email    string
}

func (in RegisterInput) validate() error {
	fields := []struct{ name, value string }{
		{"user id", in.Username},
		{"password", in.Password},
		{"role", in.Role},
		{"name", in.Name},
		{"email", in.Email},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s: %w", strings.Join(missing, ", "), ErrValidation)
	}
	return nil
}

// CreateUser hashes the password and inserts a user.
func (d *Database) CreateUser(ctx context.Context, in RegisterInput) (int64, error) {
	if err := in.validate(); err != nil {
		return 0, err
	}
	role, err := ParseRole(in.Role)
	if err != nil {
		return 0, err
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return 0, err
	}

	res, err := d.insertUserStmt.ExecContext(ctx,
		strings.TrimSpace(in.Username), hash, role, strings.TrimSpace(in.Name), strings.TrimSpace(in.Email))
	if err != nil {
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("user id %q already exists: %w", in.Username, ErrConflict)
		}
		return 0, err
	}
	return res.LastInsertId()
}

// Authenticate checks username and password and returns the caller identity.
// Unknown users and wrong passwords produce the same error.
func (d *Database) Authenticate(ctx context.Context, username, password string) (Identity, error) {
	username = strings.TrimSpace(username)
	var u User
	err := d.db.GetContext(ctx, &u, `SELECT id,username,password_hash,role,name,email FROM users WHERE username=?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		// Same cost as a wrong password.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{UserID: u.ID, Role: u.Role}, nil
}

// ResetPassword replaces the stored hash of a user.
func (d *Database) ResetPassword(ctx context.Context, userID int64, password string) error {
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty: %w", ErrValidation)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx, `UPDATE users SET password_hash=? WHERE id=?`, hash, userID)
	if err != nil {
		return err
	}
	return expectAffected(res, "user", userID)
}

// GetUser fetches a single user.
func (d *Database) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	err := d.db.GetContext(ctx, &u, `SELECT id,username,password_hash,role,name,email FROM users WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrUserNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile sets name and email of a user.
func (d *Database) UpdateProfile(ctx context.Context, userID int64, name, email string) error {
	res, err := d.db.ExecContext(ctx, `UPDATE users SET name=?, email=? WHERE id=?`,
		strings.TrimSpace(name), strings.TrimSpace(email), userID)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err != nil {
		return err
	} else if rows == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}
	return nil
}

// GetMembers returns all members with their current and returned borrowings.
// Both reads share one transaction so the history matches the member list.
func (d *Database) GetMembers(ctx context.Context) ([]*Member, error) {
	var members []*Member
	err := d.WithTx(ctx, func(tx *sqlx.Tx) error {
		var users []User
		if err := tx.SelectContext(ctx, &users,
			`SELECT id,username,password_hash,role,name,email FROM users WHERE role=? ORDER BY id`, RoleMember); err != nil {
			return err
		}

		var history []*Borrowing
		if err := tx.SelectContext(ctx, &history, `
            SELECT bo.id, bo.book_id, bo.user_id, bo.borrow_date, bo.return_date, b.title, b.author
            FROM borrowings bo
            JOIN books b ON b.id = bo.book_id
            JOIN users u ON u.id = bo.user_id
            WHERE u.role = ?
            ORDER BY bo.borrow_date, bo.id`, RoleMember); err != nil {
			return err
		}

		members = groupMembers(users, history)
		return nil
	})
	return members, err
}

// groupMembers attaches each borrowing to its member, split into open and
// returned. Borrowings of users not in the list are dropped.
func groupMembers(users []User, history []*Borrowing) []*Member {
	members := make([]*Member, 0, len(users))
	byID := make(map[int64]*Member, len(users))
	for _, u := range users {
		m := &Member{User: u, Borrowed: []*Borrowing{}, Returned: []*Borrowing{}}
		members = append(members, m)
		byID[u.ID] = m
	}
	for _, b := range history {
		m, ok := byID[b.UserID]
		if !ok {
			continue
		}
		if b.Open() {
			m.Borrowed = append(m.Borrowed, b)
		} else {
			m.Returned = append(m.Returned, b)
		}
	}
	return members
}

// DeleteUser removes a user that holds no open borrowing. Borrowing history and
// reservations go with it through the foreign key cascade.
func (d *Database) DeleteUser(ctx context.Context, userID int64) error {
	return d.WithTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id=?)`, userID); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}

		var open int
		if err := tx.GetContext(ctx, &open, `SELECT COUNT(*) FROM borrowings WHERE user_id=? AND return_date IS NULL`, userID); err != nil {
			return err
		}
		if open > 0 {
			return fmt.Errorf("member cannot be deleted because they have active borrowings: %w", ErrConflict)
		}

		_, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=?`, userID)
		return err
	})
}

// ------------------ helpers ------------------

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password"), bcrypt.DefaultCost)

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("password longer than 72 bytes: %w", ErrValidation)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func expectAffected(res sql.Result, what string, id int64) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}
