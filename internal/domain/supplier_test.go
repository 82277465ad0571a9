package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestNewSupplierAccount(t *testing.T) {
	supplier, err := domain.NewSupplierAccount("sup-1", "user-1", "  Acme  ", "PT123", testNow)
	require.NoError(t, err)
	require.Equal(t, domain.SupplierStatePending, supplier.State)
	require.Equal(t, "Acme", supplier.CompanyName)
	require.False(t, supplier.CanSell())

	_, err = domain.NewSupplierAccount("sup-2", "", "Acme", "", testNow)
	require.ErrorIs(t, err, domain.ErrUserIDRequired)

	_, err = domain.NewSupplierAccount("sup-3", "user-1", " ", "", testNow)
	require.ErrorIs(t, err, domain.ErrCompanyNameRequired)
}

func TestSupplierAccount_TransitionsAreBidirectional(t *testing.T) {
	supplier, err := domain.NewSupplierAccount("sup-1", "user-1", "Acme", "", testNow)
	require.NoError(t, err)

	path := []domain.SupplierState{
		domain.SupplierStateApproved,
		domain.SupplierStateInactive,
		domain.SupplierStatePending,
		domain.SupplierStateInactive,
		domain.SupplierStateApproved,
		domain.SupplierStatePending,
	}
	for _, target := range path {
		require.NoError(t, supplier.TransitionTo(target, testNow))
		require.Equal(t, target, supplier.State)
	}
}

func TestSupplierAccount_TransitionGuards(t *testing.T) {
	supplier, err := domain.NewSupplierAccount("sup-1", "user-1", "Acme", "", testNow)
	require.NoError(t, err)

	require.ErrorIs(t, supplier.TransitionTo(domain.SupplierStatePending, testNow), domain.ErrSupplierSameState)
	require.ErrorIs(t, supplier.TransitionTo("archived", testNow), domain.ErrUnknownState)
	require.Equal(t, domain.SupplierStatePending, supplier.State)
}
