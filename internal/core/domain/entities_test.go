package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{
		"member":  RoleMember,
		" Staff ": RoleStaff,
		"ADMIN":   RoleAdmin,
	} {
		got, err := ParseRole(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseRole("librarian")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestRole_Can(t *testing.T) {
	all := []Capability{
		CapBorrow, CapManageCirculation, CapManageCatalog, CapManageMembers,
		CapManagePolicy, CapViewReports, CapManageAccounts,
	}

	for _, c := range all {
		assert.True(t, RoleAdmin.Can(c), "admin %s", c)
	}

	assert.True(t, RoleMember.Can(CapBorrow))
	for _, c := range all[1:] {
		assert.False(t, RoleMember.Can(c), "member %s", c)
	}

	for _, c := range all[:len(all)-1] {
		assert.True(t, RoleStaff.Can(c), "staff %s", c)
	}
	assert.False(t, RoleStaff.Can(CapManageAccounts))

	assert.False(t, Role("").Can(CapBorrow))
}

func TestActor_Owns(t *testing.T) {
	assert.True(t, Actor{MemberID: 4}.Owns(4))
	assert.False(t, Actor{MemberID: 4}.Owns(5))
	assert.False(t, Actor{}.Owns(0))
}
