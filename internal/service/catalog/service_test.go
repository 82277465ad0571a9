package catalog_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var (
	fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	staff   = domain.Caller{UserID: "staff-1", Roles: []domain.Role{domain.RoleStaff}}
	alice   = domain.Caller{UserID: "alice", Roles: []domain.Role{domain.RoleSupplier}}
	bob     = domain.Caller{UserID: "bob", Roles: []domain.Role{domain.RoleSupplier}}
	shopper = domain.Caller{UserID: "shopper", Roles: []domain.Role{domain.RoleBuyer}}
)

type fixture struct {
	store *memory.Store
	cache *cache.MemoryCatalogCache
	svc   *catalog.Service
}

// newFixture: alice — approved-поставщик sup-alice, bob — pending-поставщик sup-bob.
// Справочники: категория tools с подкатегорией drills, способ доставки courier.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	listingCache := cache.NewMemoryCatalogCache()
	ids := 0
	svc := catalog.NewService(store,
		catalog.WithClock(func() time.Time { return fixedNow }),
		catalog.WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("entry-%d", ids)
		}),
		catalog.WithCache(listingCache, time.Minute),
		catalog.WithMetrics(metrics.NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())),
	)

	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, uow domain.UnitOfWork) error {
		approved, err := domain.NewSupplierAccount("sup-alice", "alice", "Alice", "", fixedNow)
		require.NoError(t, err)
		approved.State = domain.SupplierStateApproved
		require.NoError(t, uow.Suppliers().Create(ctx, approved))

		pending, err := domain.NewSupplierAccount("sup-bob", "bob", "Bob", "", fixedNow)
		require.NoError(t, err)
		require.NoError(t, uow.Suppliers().Create(ctx, pending))

		tools, err := domain.NewCategory("tools", domain.CategoryDraft{Name: "Tools"}, nil, fixedNow)
		require.NoError(t, err)
		require.NoError(t, uow.Categories().Create(ctx, tools))
		drills, err := domain.NewCategory("drills", domain.CategoryDraft{Name: "Drills", ParentID: "tools"}, &tools, fixedNow)
		require.NoError(t, err)
		require.NoError(t, uow.Categories().Create(ctx, drills))

		courier, err := domain.NewDeliveryMode("courier", domain.DeliveryModeDraft{Name: "Courier"}, fixedNow)
		require.NoError(t, err)
		return uow.DeliveryModes().Create(ctx, courier)
	}))

	return &fixture{store: store, cache: listingCache, svc: svc}
}

func draft(name, price string, stock int64) domain.CatalogDraft {
	return domain.CatalogDraft{
		Name:          name,
		CategoryID:    "tools",
		BasePrice:     decimal.RequireFromString(price),
		StockQuantity: stock,
	}
}

func (f *fixture) submitActive(t *testing.T, name, price string, stock int64, markup int64) domain.CatalogEntry {
	t.Helper()

	entry, err := f.svc.Submit(context.Background(), alice, catalog.SubmitInput{Draft: draft(name, price, stock)})
	require.NoError(t, err)
	m := decimal.NewFromInt(markup)
	entry, err = f.svc.Activate(context.Background(), staff, entry.ID, &m)
	require.NoError(t, err)
	return entry
}

func TestSubmitAndActivate_ComputesFinalPrice(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.svc.Submit(ctx, alice, catalog.SubmitInput{Draft: draft("Widget", "20.00", 5)})
	require.NoError(t, err)
	assert.Equal(t, domain.CatalogStatePending, entry.State)
	assert.True(t, entry.MarkupPercent.IsZero())
	assert.True(t, entry.FinalPrice.Equal(entry.BasePrice))

	markup := decimal.NewFromInt(10)
	_, err = f.svc.Activate(ctx, alice, entry.ID, &markup)
	require.ErrorIs(t, err, domain.ErrForbidden)

	active, err := f.svc.Activate(ctx, staff, entry.ID, &markup)
	require.NoError(t, err)
	assert.Equal(t, domain.CatalogStateActive, active.State)
	assert.True(t, active.FinalPrice.Equal(decimal.RequireFromString("22.00")), "final price %s", active.FinalPrice)

	_, err = f.svc.Activate(ctx, staff, entry.ID, nil)
	require.ErrorIs(t, err, domain.ErrPrecondition)
}

func TestSubmit_RequiresApprovedSupplier(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, bob, catalog.SubmitInput{Draft: draft("Gadget", "5.00", 1)})
	require.ErrorIs(t, err, domain.ErrSupplierNotApproved)

	_, err = f.svc.Submit(ctx, shopper, catalog.SubmitInput{Draft: draft("Gadget", "5.00", 1)})
	require.ErrorIs(t, err, domain.ErrNoSupplierAccount)

	_, err = f.svc.Submit(ctx, alice, catalog.SubmitInput{Draft: draft("Bad", "5.001", 1)})
	require.ErrorIs(t, err, domain.ErrValidation)

	onBehalf, err := f.svc.Submit(ctx, staff, catalog.SubmitInput{SupplierID: "sup-alice", Draft: draft("Gadget", "5.00", 1)})
	require.NoError(t, err)
	assert.Equal(t, "sup-alice", onBehalf.SupplierID)
}

func TestActivate_SupplierNotApproved(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.svc.Submit(ctx, staff, catalog.SubmitInput{SupplierID: "sup-alice", Draft: draft("Widget", "10.00", 1)})
	require.NoError(t, err)

	require.NoError(t, f.store.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		account, err := uow.Suppliers().Get(ctx, "sup-alice")
		require.NoError(t, err)
		require.NoError(t, account.TransitionTo(domain.SupplierStatePending, fixedNow))
		return uow.Suppliers().Save(ctx, account)
	}))

	_, err = f.svc.Activate(ctx, staff, entry.ID, nil)
	require.ErrorIs(t, err, domain.ErrPrecondition)
	require.ErrorIs(t, err, domain.ErrSupplierNotApproved)

	got, err := f.svc.Get(ctx, staff, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CatalogStatePending, got.State)
}

func TestEdit_OwnerForcesPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	entry := f.submitActive(t, "Widget", "20.00", 5, 10)

	edited, err := f.svc.Edit(ctx, staff, entry.ID, draft("Widget Pro", "30.00", 5))
	require.NoError(t, err)
	assert.Equal(t, domain.CatalogStateActive, edited.State)
	assert.True(t, edited.FinalPrice.Equal(decimal.RequireFromString("33.00")))

	for _, start := range []string{"active", "inactive"} {
		if start == "inactive" {
			_, err := f.svc.Suspend(ctx, alice, entry.ID)
			require.NoError(t, err)
		}
		edited, err = f.svc.Edit(ctx, alice, entry.ID, draft("Widget", "25.00", 7))
		require.NoError(t, err, start)
		assert.Equal(t, domain.CatalogStatePending, edited.State, start)
		assert.True(t, edited.FinalPrice.Equal(decimal.RequireFromString("27.50")), start)

		m := decimal.NewFromInt(10)
		_, err = f.svc.Activate(ctx, staff, entry.ID, &m)
		require.NoError(t, err)
	}

	_, err = f.svc.Edit(ctx, bob, entry.ID, draft("Stolen", "1.00", 1))
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.Edit(ctx, shopper, entry.ID, draft("Stolen", "1.00", 1))
	require.ErrorIs(t, err, domain.ErrNoSupplierAccount)
	_, err = f.svc.Edit(ctx, alice, entry.ID, draft("Widget", "1.00", -1))
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSuspendReactivate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	entry := f.submitActive(t, "Widget", "20.00", 5, 0)

	_, err := f.svc.Reactivate(ctx, staff, entry.ID)
	require.ErrorIs(t, err, domain.ErrPrecondition)

	suspended, err := f.svc.Suspend(ctx, alice, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CatalogStateInactive, suspended.State)

	_, err = f.svc.Suspend(ctx, staff, entry.ID)
	require.ErrorIs(t, err, domain.ErrPrecondition)

	reactivated, err := f.svc.Reactivate(ctx, alice, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CatalogStatePending, reactivated.State)

	_, err = f.svc.Reactivate(ctx, alice, entry.ID)
	require.ErrorIs(t, err, domain.ErrPrecondition)

	got, err := f.svc.Get(ctx, staff, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CatalogStatePending, got.State)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	sold := f.submitActive(t, "Sold", "10.00", 5, 0)
	unsold := f.submitActive(t, "Unsold", "10.00", 5, 0)

	order, err := domain.NewOrder("o-1", "buyer", []domain.OrderLine{{
		ID: "l-1", EntryID: sold.ID, SupplierID: "sup-alice", Quantity: 1,
		UnitPrice: sold.FinalPrice, BasePrice: sold.BasePrice,
	}}, fixedNow)
	require.NoError(t, err)
	require.NoError(t, f.store.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		return uow.Orders().Create(ctx, order)
	}))

	err = f.svc.Delete(ctx, alice, sold.ID)
	require.ErrorIs(t, err, domain.ErrConflict)

	err = f.svc.Delete(ctx, bob, unsold.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, f.svc.Delete(ctx, alice, unsold.ID))
	_, err = f.svc.Get(ctx, staff, unsold.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = f.svc.Delete(ctx, staff, unsold.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVisibility(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	active := f.submitActive(t, "Active", "10.00", 5, 0)
	pending, err := f.svc.Submit(ctx, alice, catalog.SubmitInput{Draft: draft("Pending", "10.00", 5)})
	require.NoError(t, err)

	for _, caller := range []domain.Caller{domain.Anonymous(), shopper, bob} {
		_, err := f.svc.Get(ctx, caller, active.ID)
		require.NoError(t, err)
		_, err = f.svc.Get(ctx, caller, pending.ID)
		require.ErrorIs(t, err, domain.ErrNotFound)
	}
	for _, caller := range []domain.Caller{staff, alice} {
		_, err := f.svc.Get(ctx, caller, pending.ID)
		require.NoError(t, err)
	}

	public, err := f.svc.List(ctx, shopper, catalog.ListFilter{})
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, active.ID, public[0].ID)

	mine, err := f.svc.List(ctx, alice, catalog.ListFilter{Mine: true})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	_, err = f.svc.List(ctx, shopper, catalog.ListFilter{Mine: true})
	require.ErrorIs(t, err, domain.ErrNoSupplierAccount)

	pendingQueue, err := f.svc.List(ctx, staff, catalog.ListFilter{State: domain.CatalogStatePending})
	require.NoError(t, err)
	require.Len(t, pendingQueue, 1)
	assert.Equal(t, pending.ID, pendingQueue[0].ID)
}

func TestListActive_CachedAndInvalidated(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	first := f.submitActive(t, "First", "10.00", 5, 0)

	listed, err := f.svc.ListByCategory(ctx, "tools", 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, 1, f.cache.Len())

	_, err = f.svc.Suspend(ctx, staff, first.ID)
	require.NoError(t, err)
	assert.Zero(t, f.cache.Len())

	listed, err = f.svc.ListByCategory(ctx, "tools", 0)
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = f.svc.ListByCategory(ctx, "", 0)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSubmitAndEdit_RejectUnknownReferences(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	unknownCategory := draft("Widget", "10.00", 1)
	unknownCategory.CategoryID = "garden"
	_, err := f.svc.Submit(ctx, alice, catalog.SubmitInput{Draft: unknownCategory})
	require.ErrorIs(t, err, domain.ErrUnknownCategory)
	require.ErrorIs(t, err, domain.ErrValidation)

	withMode := draft("Widget", "10.00", 1)
	withMode.DeliveryModeID = "courier"
	entry, err := f.svc.Submit(ctx, alice, catalog.SubmitInput{Draft: withMode})
	require.NoError(t, err)
	assert.Equal(t, "courier", entry.DeliveryModeID)

	unknownMode := draft("Widget", "10.00", 1)
	unknownMode.DeliveryModeID = "drone"
	_, err = f.svc.Edit(ctx, alice, entry.ID, unknownMode)
	require.ErrorIs(t, err, domain.ErrUnknownDeliveryMode)
	require.ErrorIs(t, err, domain.ErrValidation)

	noCategory := draft("Widget", "10.00", 1)
	noCategory.CategoryID = ""
	edited, err := f.svc.Edit(ctx, staff, entry.ID, noCategory)
	require.NoError(t, err)
	assert.Empty(t, edited.CategoryID)
}

func TestListByCategory_IncludesSubcategories(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.submitActive(t, "Hammer", "10.00", 5, 0)

	drill, err := f.svc.Submit(ctx, alice, catalog.SubmitInput{Draft: domain.CatalogDraft{
		Name:          "Drill",
		CategoryID:    "drills",
		BasePrice:     decimal.RequireFromString("50.00"),
		StockQuantity: 2,
	}})
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, staff, drill.ID, nil)
	require.NoError(t, err)

	listed, err := f.svc.ListByCategory(ctx, "tools", 0)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	listed, err = f.svc.ListByCategory(ctx, "drills", 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, drill.ID, listed[0].ID)

	mine, err := f.svc.List(ctx, alice, catalog.ListFilter{Mine: true, CategoryID: "tools"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	listed, err = f.svc.ListByCategory(ctx, "garden", 0)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestFeatured(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Featured(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	f.submitActive(t, "Out of stock", "10.00", 0, 0)
	inStock := f.submitActive(t, "In stock", "10.00", 3, 0)

	for i := 0; i < 5; i++ {
		featured, err := f.svc.Featured(ctx)
		require.NoError(t, err)
		assert.Equal(t, inStock.ID, featured.ID)
	}
}

func TestTransitionsAreRecordedInOutbox(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	entry := f.submitActive(t, "Widget", "10.00", 5, 0)
	_, err := f.svc.Suspend(ctx, staff, entry.ID)
	require.NoError(t, err)

	pending, err := f.store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	types := make([]string, 0, len(pending))
	for _, msg := range pending {
		assert.Equal(t, domain.AggregateCatalogEntry, msg.AggregateType)
		types = append(types, msg.EventType)
	}
	assert.Equal(t, []string{
		domain.EventCatalogEntrySubmitted,
		domain.EventCatalogEntryActivated,
		domain.EventCatalogEntrySuspended,
	}, types)
}
