package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestParseRole(t *testing.T) {
	role, err := domain.ParseRole(" Staff ")
	require.NoError(t, err)
	require.Equal(t, domain.RoleStaff, role)

	_, err = domain.ParseRole("root")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestCaller_Roles(t *testing.T) {
	require.False(t, domain.Anonymous().IsStaff())
	require.False(t, domain.Caller{Roles: []domain.Role{domain.RoleStaff}}.IsStaff(), "roles without identity are ignored")

	admin := domain.Caller{UserID: "u", Roles: []domain.Role{domain.RoleAdmin}}
	require.True(t, admin.IsStaff())
	require.NoError(t, admin.RequireStaff("ShipOrder"))

	buyer := domain.Caller{UserID: "u", Roles: []domain.Role{domain.RoleBuyer}}
	require.ErrorIs(t, buyer.RequireStaff("ShipOrder"), domain.ErrForbidden)
	require.NoError(t, buyer.RequireRole(domain.RoleBuyer, "Checkout"))
	require.ErrorIs(t, buyer.RequireRole(domain.RoleSupplier, "SubmitEntry"), domain.ErrForbidden)
}
