package cart_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var (
	buyer      = domain.Caller{UserID: "buyer-1", Roles: []domain.Role{domain.RoleBuyer}}
	otherBuyer = domain.Caller{UserID: "buyer-2", Roles: []domain.Role{domain.RoleBuyer}}
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newSessions(t *testing.T, clk *clock) (*cart.Sessions, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	now := clk.Now()
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, uow domain.UnitOfWork) error {
		supplier, err := domain.NewSupplierAccount("sup-1", "supplier", "Acme", "", now)
		require.NoError(t, err)
		supplier.State = domain.SupplierStateApproved
		require.NoError(t, uow.Suppliers().Create(ctx, supplier))

		for _, seed := range []struct {
			id       string
			price    string
			stock    int64
			activate bool
		}{
			{"e1", "20.00", 5, true},
			{"e2", "1.50", 10, true},
			{"hidden", "3.00", 10, false},
		} {
			entry, err := domain.NewCatalogEntry(seed.id, "sup-1", domain.CatalogDraft{
				Name:          "Item " + seed.id,
				BasePrice:     decimal.RequireFromString(seed.price),
				StockQuantity: seed.stock,
			}, now)
			require.NoError(t, err)
			if seed.activate {
				require.NoError(t, entry.Activate(supplier, nil, now))
			}
			require.NoError(t, uow.Catalog().Create(ctx, entry))
		}
		return nil
	}))

	catalogSvc := catalog.NewService(store)
	orderingSvc := ordering.NewService(store, payment.NewStubGateway())
	sessions := cart.NewSessions(catalogSvc, orderingSvc, cart.WithClock(clk.Now), cart.WithIdleTTL(10*time.Minute))
	return sessions, store
}

func TestSessions_ViewPricesAtReadTime(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	sessions, _ := newSessions(t, clk)
	ctx := context.Background()

	require.NoError(t, sessions.AddItem(buyer, "s1", "e1", 2))
	require.NoError(t, sessions.AddItem(buyer, "s1", "e2", 0))
	require.NoError(t, sessions.AddItem(buyer, "s1", "e2", 3))
	require.NoError(t, sessions.AddItem(buyer, "s1", "hidden", 1))

	view, err := sessions.View(ctx, buyer, "s1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 3)
	assert.Equal(t, "e1", view.Lines[0].EntryID)
	assert.Equal(t, int64(4), view.Lines[1].Quantity)
	assert.False(t, view.Lines[2].Available)
	assert.Equal(t, int64(7), view.TotalItems)
	assert.True(t, view.Total.Equal(decimal.RequireFromString("46.00")), "total %s", view.Total)

	require.NoError(t, sessions.SetQuantity(buyer, "s1", "e2", 0))
	require.NoError(t, sessions.RemoveItem(buyer, "s1", "hidden"))
	view, err = sessions.View(ctx, buyer, "s1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.True(t, view.Total.Equal(decimal.RequireFromString("40.00")))

	empty, err := sessions.View(ctx, buyer, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty.Lines)
	assert.Equal(t, 1, sessions.Len())

	_, err = sessions.View(ctx, buyer, "")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSessions_CheckoutClearsOnlyOnSuccess(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	sessions, store := newSessions(t, clk)
	ctx := context.Background()

	require.NoError(t, sessions.AddItem(buyer, "s1", "e1", 6))
	_, err := sessions.Checkout(ctx, buyer, "s1")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	view, err := sessions.View(ctx, buyer, "s1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)

	require.NoError(t, sessions.SetQuantity(buyer, "s1", "e1", 3))
	result, err := sessions.Checkout(ctx, buyer, "s1")
	require.NoError(t, err)
	assert.True(t, result.Total.Equal(decimal.RequireFromString("60.00")))

	view, err = sessions.View(ctx, buyer, "s1")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		entry, err := uow.Catalog().Get(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, int64(5), entry.StockQuantity)
		return nil
	}))

	_, err = sessions.Checkout(ctx, buyer, "s1")
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = sessions.Checkout(ctx, buyer, "never-used")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSessions_EvictIdle(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	sessions, _ := newSessions(t, clk)

	require.NoError(t, sessions.AddItem(buyer, "old", "e1", 1))
	clk.now = clk.now.Add(8 * time.Minute)
	require.NoError(t, sessions.AddItem(buyer, "fresh", "e1", 1))

	clk.now = clk.now.Add(5 * time.Minute)
	assert.Equal(t, 1, sessions.EvictIdle())
	assert.Equal(t, 1, sessions.Len())

	view, err := sessions.View(context.Background(), buyer, "fresh")
	require.NoError(t, err)
	assert.Len(t, view.Lines, 1)
}

func TestSessions_BoundToFirstAuthenticatedCaller(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	sessions, _ := newSessions(t, clk)
	ctx := context.Background()

	require.NoError(t, sessions.AddItem(domain.Anonymous(), "guest", "e1", 1))
	require.NoError(t, sessions.AddItem(buyer, "guest", "e2", 1))

	_, err := sessions.View(ctx, otherBuyer, "guest")
	require.ErrorIs(t, err, domain.ErrNotOwner)
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = sessions.Checkout(ctx, otherBuyer, "guest")
	require.ErrorIs(t, err, domain.ErrNotOwner)
	require.ErrorIs(t, sessions.Clear(otherBuyer, "guest"), domain.ErrNotOwner)
	require.ErrorIs(t, sessions.AddItem(domain.Anonymous(), "guest", "e1", 1), domain.ErrNotOwner)

	view, err := sessions.View(ctx, buyer, "guest")
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.TotalItems)
}

func TestSessions_UseAndSweepConcurrently(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	sessions, _ := newSessions(t, clk)

	const adds = 50
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < adds; i++ {
			sessions.EvictIdle()
		}
	}()
	for i := 0; i < adds; i++ {
		require.NoError(t, sessions.AddItem(buyer, "s1", "e1", 1))
	}
	<-done

	view, err := sessions.View(context.Background(), buyer, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(adds), view.TotalItems)
}

func TestSessions_LookupRefreshesIdleSession(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	sessions, _ := newSessions(t, clk)

	require.NoError(t, sessions.AddItem(buyer, "s1", "e1", 1))
	clk.now = clk.now.Add(11 * time.Minute)

	_, err := sessions.View(context.Background(), buyer, "s1")
	require.NoError(t, err)
	assert.Zero(t, sessions.EvictIdle())

	view, err := sessions.View(context.Background(), buyer, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.TotalItems)
}
