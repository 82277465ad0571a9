package taxonomy_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/taxonomy"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var (
	fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	staff    = domain.Caller{UserID: "staff-1", Roles: []domain.Role{domain.RoleStaff}}
	supplier = domain.Caller{UserID: "alice", Roles: []domain.Role{domain.RoleSupplier}}
)

func newService(store *memory.Store, options ...taxonomy.Option) *taxonomy.Service {
	ids := 0
	base := []taxonomy.Option{
		taxonomy.WithClock(func() time.Time { return fixedNow }),
		taxonomy.WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("tax-%d", ids)
		}),
	}
	return taxonomy.NewService(store, append(base, options...)...)
}

func seedEntry(t *testing.T, store *memory.Store, id string, draft domain.CatalogDraft) {
	t.Helper()
	entry, err := domain.NewCatalogEntry(id, "sup-1", draft, fixedNow)
	require.NoError(t, err)
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, uow domain.UnitOfWork) error {
		return uow.Catalog().Create(ctx, entry)
	}))
}

func TestCategories_StaffOnlyCRUD(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	changes := 0
	svc := newService(store, taxonomy.WithChangeHook(func(context.Context) { changes++ }))
	ctx := context.Background()

	_, err := svc.CreateCategory(ctx, supplier, domain.CategoryDraft{Name: "Tools"})
	require.ErrorIs(t, err, domain.ErrForbidden)

	root, err := svc.CreateCategory(ctx, staff, domain.CategoryDraft{Name: " Tools ", ImageRef: "tools.png"})
	require.NoError(t, err)
	assert.Equal(t, "tax-1", root.ID)
	assert.Equal(t, "Tools", root.Name)
	assert.True(t, root.IsRoot())

	child, err := svc.CreateCategory(ctx, staff, domain.CategoryDraft{Name: "Drills", ParentID: root.ID})
	require.NoError(t, err)
	assert.Equal(t, root.ID, child.ParentID)

	_, err = svc.CreateCategory(ctx, staff, domain.CategoryDraft{Name: "Cordless", ParentID: child.ID})
	require.ErrorIs(t, err, domain.ErrCategoryDepth)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateCategory(ctx, staff, domain.CategoryDraft{Name: "Orphan", ParentID: "missing"})
	require.ErrorIs(t, err, domain.ErrUnknownCategory)

	_, err = svc.CreateCategory(ctx, staff, domain.CategoryDraft{Name: " "})
	require.ErrorIs(t, err, domain.ErrValidation)

	updated, err := svc.UpdateCategory(ctx, staff, root.ID, domain.CategoryDraft{Name: "Hand tools"})
	require.NoError(t, err)
	assert.Equal(t, "Hand tools", updated.Name)
	assert.Equal(t, int64(1), updated.Version)

	got, err := svc.GetCategory(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	all, err := svc.ListCategories(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	children, err := svc.ListCategories(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)

	_, err = svc.ListCategories(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrCategoryNotFound)

	assert.Equal(t, 3, changes)

	pending, err := store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, domain.AggregateCategory, pending[0].AggregateType)
	assert.Equal(t, domain.EventCategoryCreated, pending[0].EventType)
	assert.Equal(t, domain.EventCategoryUpdated, pending[2].EventType)
}

func TestUpdateCategory_ParentWithChildrenCannotBecomeSubcategory(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	svc := newService(store)
	ctx := context.Background()

	tools, err := svc.CreateCategory(ctx, staff, domain.CategoryDraft{Name: "Tools"})
	require.NoError(t, err)
	garden, err := svc.CreateCategory(ctx, staff, domain.CategoryDraft{Name: "Garden"})
	require.NoError(t, err)
	_, err = svc.CreateCategory(ctx, staff, domain.CategoryDraft{Name: "Drills", ParentID: tools.ID})
	require.NoError(t, err)

	_, err = svc.UpdateCategory(ctx, staff, tools.ID, domain.CategoryDraft{Name: "Tools", ParentID: garden.ID})
	require.ErrorIs(t, err, domain.ErrCategoryDepth)

	_, err = svc.UpdateCategory(ctx, staff, garden.ID, domain.CategoryDraft{Name: "Garden", ParentID: garden.ID})
	require.ErrorIs(t, err, domain.ErrCategoryDepth)

	moved, err := svc.UpdateCategory(ctx, staff, garden.ID, domain.CategoryDraft{Name: "Garden", ParentID: tools.ID})
	require.NoError(t, err)
	assert.Equal(t, tools.ID, moved.ParentID)

	_, err = svc.UpdateCategory(ctx, staff, "missing", domain.CategoryDraft{Name: "X"})
	require.ErrorIs(t, err, domain.ErrCategoryNotFound)
}

func TestDeleteCategory_InUse(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	svc := newService(store)
	ctx := context.Background()

	root, err := svc.CreateCategory(ctx, staff, domain.CategoryDraft{Name: "Tools"})
	require.NoError(t, err)
	child, err := svc.CreateCategory(ctx, staff, domain.CategoryDraft{Name: "Drills", ParentID: root.ID})
	require.NoError(t, err)
	seedEntry(t, store, "entry-1", domain.CatalogDraft{Name: "Drill", CategoryID: child.ID, BasePrice: decimal.NewFromInt(10)})

	require.ErrorIs(t, svc.DeleteCategory(ctx, staff, root.ID), domain.ErrCategoryInUse)
	require.ErrorIs(t, svc.DeleteCategory(ctx, staff, child.ID), domain.ErrConflict)
	require.ErrorIs(t, svc.DeleteCategory(ctx, supplier, child.ID), domain.ErrForbidden)
	require.ErrorIs(t, svc.DeleteCategory(ctx, staff, "missing"), domain.ErrCategoryNotFound)

	empty, err := svc.CreateCategory(ctx, staff, domain.CategoryDraft{Name: "Garden"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteCategory(ctx, staff, empty.ID))

	_, err = svc.GetCategory(ctx, empty.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeliveryModes_CRUD(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	svc := newService(store)
	ctx := context.Background()

	_, err := svc.CreateDeliveryMode(ctx, supplier, domain.DeliveryModeDraft{Name: "Courier"})
	require.ErrorIs(t, err, domain.ErrForbidden)

	courier, err := svc.CreateDeliveryMode(ctx, staff, domain.DeliveryModeDraft{Name: "Courier", Kind: "home", Details: "2 days"})
	require.NoError(t, err)
	pickup, err := svc.CreateDeliveryMode(ctx, staff, domain.DeliveryModeDraft{Name: "Pickup", Kind: "store"})
	require.NoError(t, err)

	updated, err := svc.UpdateDeliveryMode(ctx, staff, pickup.ID, domain.DeliveryModeDraft{Name: "Pickup point", Kind: "store"})
	require.NoError(t, err)
	assert.Equal(t, "Pickup point", updated.Name)

	_, err = svc.UpdateDeliveryMode(ctx, staff, pickup.ID, domain.DeliveryModeDraft{})
	require.ErrorIs(t, err, domain.ErrValidation)

	modes, err := svc.ListDeliveryModes(ctx)
	require.NoError(t, err)
	require.Len(t, modes, 2)
	assert.Equal(t, "Courier", modes[0].Name)

	seedEntry(t, store, "entry-1", domain.CatalogDraft{Name: "Drill", DeliveryModeID: courier.ID, BasePrice: decimal.NewFromInt(10)})
	require.ErrorIs(t, svc.DeleteDeliveryMode(ctx, staff, courier.ID), domain.ErrDeliveryModeInUse)
	require.NoError(t, svc.DeleteDeliveryMode(ctx, staff, pickup.ID))
	require.ErrorIs(t, svc.DeleteDeliveryMode(ctx, staff, pickup.ID), domain.ErrDeliveryModeNotFound)

	pending, err := store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 4)
	assert.Equal(t, domain.EventDeliveryModeDeleted, pending[3].EventType)
}
