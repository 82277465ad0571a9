package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestCart_AddMergesQuantities(t *testing.T) {
	cart := domain.NewCart()
	require.NoError(t, cart.AddItem("a", 1))
	require.NoError(t, cart.AddItem("b", 2))
	require.NoError(t, cart.AddItem("a", 3))

	require.Equal(t, []domain.CartLine{{EntryID: "a", Quantity: 4}, {EntryID: "b", Quantity: 2}}, cart.Lines())
	require.EqualValues(t, 6, cart.TotalItems())
}

func TestCart_AddRejectsInvalidQuantity(t *testing.T) {
	cart := domain.NewCart()
	require.ErrorIs(t, cart.AddItem("a", 0), domain.ErrQuantityInvalid)
	require.ErrorIs(t, cart.AddItem("", 1), domain.ErrIDRequired)
	require.True(t, cart.IsEmpty())
}

func TestCart_SetQuantity(t *testing.T) {
	cart := domain.NewCart()
	require.NoError(t, cart.AddItem("a", 1))
	require.NoError(t, cart.AddItem("b", 1))

	cart.SetQuantity("a", 5)
	require.EqualValues(t, 6, cart.TotalItems())

	cart.SetQuantity("a", 0)
	require.Equal(t, []domain.CartLine{{EntryID: "b", Quantity: 1}}, cart.Lines())

	cart.SetQuantity("b", -3)
	require.True(t, cart.IsEmpty())
}

func TestCart_RemoveAndClear(t *testing.T) {
	cart := domain.NewCart()
	require.NoError(t, cart.AddItem("a", 1))
	require.NoError(t, cart.AddItem("b", 1))

	cart.RemoveItem("missing")
	cart.RemoveItem("a")
	require.Equal(t, []domain.CartLine{{EntryID: "b", Quantity: 1}}, cart.Lines())

	cart.Clear()
	require.True(t, cart.IsEmpty())
	require.Zero(t, cart.TotalItems())
}

func TestCart_TotalUsesPriceAtReadTime(t *testing.T) {
	cart := domain.NewCart()
	require.NoError(t, cart.AddItem("a", 2))
	require.NoError(t, cart.AddItem("gone", 1))

	prices := map[string]decimal.Decimal{"a": dec(t, "10.50")}
	lookup := func(id string) (decimal.Decimal, bool) {
		p, ok := prices[id]
		return p, ok
	}
	require.True(t, cart.Total(lookup).Equal(dec(t, "21.00")))

	prices["a"] = dec(t, "11.00")
	require.True(t, cart.Total(lookup).Equal(dec(t, "22.00")))
}

func TestCart_ToOrderRequestIsSnapshot(t *testing.T) {
	cart := domain.NewCart()
	require.NoError(t, cart.AddItem("a", 2))

	req := cart.ToOrderRequest()
	cart.SetQuantity("a", 9)

	require.Equal(t, []domain.OrderRequestLine{{EntryID: "a", Quantity: 2}}, req)
}
