package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, -5, 41)
	require.Equal(t, 20, p.Limit)
	require.Equal(t, 0, p.Offset)
	require.Equal(t, 3, p.TotalPages)

	require.Equal(t, 200, NormalizeLimit(5000))
}

func TestRoleGrantsCoverWarehouseScopes(t *testing.T) {
	grants := RoleGrants()
	require.ElementsMatch(t, WarehouseScopes(), grants[RoleAdmin])
	require.NotContains(t, grants[RoleEmployee], PermWarehouseOrderCancel)
	require.NotContains(t, grants[RoleClient], PermWarehouseOrderReceive)
	for role := range grants {
		require.True(t, role.Valid())
	}
}
