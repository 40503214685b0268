package library

import (
	"database/sql/driver"
	"fmt"
)

// Role is the access class of a user.
type Role int

const (
	RoleUnknown Role = iota
	RoleLibrarian
	RoleMember
)

// ParseRole maps the stored/submitted role name onto a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "Librarian":
		return RoleLibrarian, nil
	case "Member":
		return RoleMember, nil
	}
	return RoleUnknown, fmt.Errorf("role %q: %w", s, ErrValidation)
}

func (r Role) String() string {
	switch r {
	case RoleLibrarian:
		return "Librarian"
	case RoleMember:
		return "Member"
	case RoleUnknown:
	}
	return "Unknown"
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value stores the role by name so the column stays readable.
func (r Role) Value() (driver.Value, error) {
	switch r {
	case RoleLibrarian, RoleMember:
		return r.String(), nil
	case RoleUnknown:
	}
	return nil, fmt.Errorf("store role %d: %w", int(r), ErrValidation)
}

func (r *Role) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	}
	return fmt.Errorf("scan role from %T", src)
}

// Identity is the authenticated caller of a request. It is built per request
// from the session and handed to every Manager operation.
type Identity struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

// Anonymous reports whether no user is logged in.
func (id Identity) Anonymous() bool { return id.UserID == 0 }

// Require returns ErrForbidden unless the caller holds the given role.
func (id Identity) Require(role Role) error {
	if id.Anonymous() {
		return fmt.Errorf("login required: %w", ErrForbidden)
	}
	switch role {
	case RoleLibrarian, RoleMember:
		if id.Role == role {
			return nil
		}
		return fmt.Errorf("%s role required: %w", role, ErrForbidden)
	case RoleUnknown:
	}
	return fmt.Errorf("unknown role required: %w", ErrForbidden)
}
