package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole("Librarian")
	require.NoError(t, err)
	assert.Equal(t, RoleLibrarian, role)

	role, err = ParseRole("Member")
	require.NoError(t, err)
	assert.Equal(t, RoleMember, role)

	for _, bad := range []string{"", "member", "Admin"} {
		_, err := ParseRole(bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}

func TestRoleValue(t *testing.T) {
	v, err := RoleMember.Value()
	require.NoError(t, err)
	assert.Equal(t, "Member", v)

	_, err = RoleUnknown.Value()
	assert.ErrorIs(t, err, ErrValidation)

	var r Role
	require.NoError(t, r.Scan([]byte("Librarian")))
	assert.Equal(t, RoleLibrarian, r)
	assert.Error(t, r.Scan(int64(1)))
}

func TestIdentityRequire(t *testing.T) {
	librarian := Identity{UserID: 1, Role: RoleLibrarian}
	member := Identity{UserID: 2, Role: RoleMember}

	assert.NoError(t, librarian.Require(RoleLibrarian))
	assert.NoError(t, member.Require(RoleMember))
	assert.ErrorIs(t, librarian.Require(RoleMember), ErrForbidden)
	assert.ErrorIs(t, member.Require(RoleLibrarian), ErrForbidden)
	assert.ErrorIs(t, Identity{}.Require(RoleMember), ErrForbidden)
	assert.ErrorIs(t, member.Require(RoleUnknown), ErrForbidden)

	assert.True(t, Identity{}.Anonymous())
	assert.False(t, member.Anonymous())
}
