package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var errBoom = errors.New("boom")

func seedEntry(t *testing.T, store *memory.Store, id string, stock int64) domain.CatalogEntry {
	t.Helper()
	entry, err := domain.NewCatalogEntry(id, "sup-1", domain.CatalogDraft{
		Name:          "Item " + id,
		BasePrice:     decimal.RequireFromString("10.00"),
		StockQuantity: stock,
	}, time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, uow domain.UnitOfWork) error {
		return uow.Catalog().Create(ctx, entry)
	}))
	return entry
}

func TestStore_RollbackDiscardsAllWrites(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	seedEntry(t, store, "e1", 5)

	order, err := domain.NewOrder("o1", "buyer", []domain.OrderLine{
		{ID: "l1", EntryID: "e1", Quantity: 1, UnitPrice: decimal.RequireFromString("10.00")},
	}, time.Now().UTC())
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		require.NoError(t, uow.Orders().Create(ctx, order))
		_, err := uow.Outbox().Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateOrder, AggregateID: "o1"})
		require.NoError(t, err)
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		_, err := uow.Orders().Get(ctx, "o1")
		require.ErrorIs(t, err, domain.ErrOrderNotFound)
		return nil
	}))

	stats, err := store.Outbox().Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}

func TestStore_CanceledContextDoesNotRun(t *testing.T) {
	store := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinTx(ctx, func(context.Context, domain.UnitOfWork) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestStore_ConcurrentDecrementsNeverOverdraw(t *testing.T) {
	store := memory.NewStore()
	seedEntry(t, store, "e1", 10)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(context.Background(), func(ctx context.Context, uow domain.UnitOfWork) error {
				entry, err := uow.Catalog().GetForUpdate(ctx, "e1")
				if err != nil {
					return err
				}
				if err := entry.DecrementStock(3, time.Now().UTC()); err != nil {
					return err
				}
				return uow.Catalog().Save(ctx, entry)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 3, succeeded)
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, uow domain.UnitOfWork) error {
		entry, err := uow.Catalog().Get(ctx, "e1")
		require.NoError(t, err)
		require.EqualValues(t, 1, entry.StockQuantity)
		return nil
	}))
}

func TestCatalogRepository_SaveChecksVersion(t *testing.T) {
	store := memory.NewStore()
	entry := seedEntry(t, store, "e1", 1)

	err := store.WithinTx(context.Background(), func(ctx context.Context, uow domain.UnitOfWork) error {
		require.NoError(t, uow.Catalog().Save(ctx, entry))
		return uow.Catalog().Save(ctx, entry)
	})
	require.ErrorIs(t, err, domain.ErrVersionConflict)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestCatalogRepository_ListFilters(t *testing.T) {
	store := memory.NewStore()
	seedEntry(t, store, "pending", 1)
	seedEntry(t, store, "empty", 0)

	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, uow domain.UnitOfWork) error {
		entry, err := uow.Catalog().Get(ctx, "empty")
		require.NoError(t, err)
		entry.State = domain.CatalogStateActive
		entry.CategoryID = "books"
		return uow.Catalog().Save(ctx, entry)
	}))

	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, uow domain.UnitOfWork) error {
		active, err := uow.Catalog().List(ctx, domain.CatalogFilter{States: []domain.CatalogState{domain.CatalogStateActive}})
		require.NoError(t, err)
		require.Len(t, active, 1)
		require.Equal(t, "empty", active[0].ID)

		inStock, err := uow.Catalog().List(ctx, domain.CatalogFilter{InStockOnly: true})
		require.NoError(t, err)
		require.Len(t, inStock, 1)
		require.Equal(t, "pending", inStock[0].ID)

		books, err := uow.Catalog().List(ctx, domain.CatalogFilter{CategoryID: "books"})
		require.NoError(t, err)
		require.Len(t, books, 1)

		all, err := uow.Catalog().List(ctx, domain.CatalogFilter{SupplierID: "sup-1", Limit: 1})
		require.NoError(t, err)
		require.Len(t, all, 1)
		return nil
	}))
}

func TestOrderRepository_LinesAndSales(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	seedEntry(t, store, "e1", 5)

	now := time.Now().UTC()
	order, err := domain.NewOrder("o1", "buyer-1", []domain.OrderLine{{
		ID: "l1", EntryID: "e1", EntryName: "Item e1", SupplierID: "sup-1", Quantity: 2,
		UnitPrice: decimal.RequireFromString("11.00"), BasePrice: decimal.RequireFromString("10.00"),
	}}, now)
	require.NoError(t, err)

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		return uow.Orders().Create(ctx, order)
	}))

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		has, err := uow.Orders().HasLinesForEntry(ctx, "e1")
		require.NoError(t, err)
		require.True(t, has)

		sales, err := uow.Orders().ListSupplierSales(ctx, "sup-1", 0)
		require.NoError(t, err)
		require.Len(t, sales, 1)
		require.True(t, sales[0].Earnings.Equal(decimal.RequireFromString("20.00")))

		mine, err := uow.Orders().ListByBuyer(ctx, "buyer-1", 10)
		require.NoError(t, err)
		require.Len(t, mine, 1)

		pending, err := uow.Orders().ListByState(ctx, domain.OrderStatePending, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)

		stored, err := uow.Orders().Get(ctx, "o1")
		require.NoError(t, err)
		require.NoError(t, stored.Confirm(now))
		require.NoError(t, uow.Orders().Save(ctx, stored))
		require.ErrorIs(t, uow.Orders().Save(ctx, stored), domain.ErrVersionConflict)
		return nil
	}))
}

func TestCatalogRepository_DeleteDetachesHistoricalLines(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	seedEntry(t, store, "e1", 5)

	order, err := domain.NewOrder("o1", "buyer-1", []domain.OrderLine{
		{ID: "l1", EntryID: "e1", Quantity: 1, UnitPrice: decimal.RequireFromString("10.00")},
	}, time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		require.NoError(t, uow.Orders().Create(ctx, order))
		return uow.Catalog().Delete(ctx, "e1")
	}))

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		stored, err := uow.Orders().Get(ctx, "o1")
		require.NoError(t, err)
		require.Empty(t, stored.Lines[0].EntryID)
		require.True(t, stored.Total.Equal(decimal.RequireFromString("10.00")))
		return nil
	}))
}

func TestOutbox_PullInInsertionOrder(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		for _, id := range []string{"a", "b", "c"} {
			if _, err := uow.Outbox().Enqueue(ctx, domain.OutboxMessage{ID: id, EventType: domain.EventOrderCreated}); err != nil {
				return err
			}
		}
		return nil
	}))

	outbox := store.Outbox()
	pending, err := outbox.PullPending(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, []string{pending[0].ID, pending[1].ID})

	require.NoError(t, outbox.MarkSent(ctx, "a"))
	require.NoError(t, outbox.MarkFailed(ctx, "b"))
	require.ErrorIs(t, outbox.MarkSent(ctx, "missing"), domain.ErrOutboxPublish)

	stats, err := outbox.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)
}

func TestTimeline_ChronologicalOrder(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	base := time.Now().UTC()

	timeline := store.Timeline()
	require.NoError(t, timeline.Append(ctx, domain.TimelineEvent{OrderID: "o1", Type: domain.TimelineOrderConfirmed, Occurred: base.Add(time.Minute)}))
	require.NoError(t, timeline.Append(ctx, domain.TimelineEvent{OrderID: "o1", Type: domain.TimelineOrderCreated, Occurred: base}))

	events, err := timeline.List(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.TimelineOrderCreated, events[0].Type)
}
