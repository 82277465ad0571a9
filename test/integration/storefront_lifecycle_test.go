package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/supplier"
	"github.com/vladislavdragonenkov/storefront/internal/service/taxonomy"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var (
	staff        = domain.Caller{UserID: "staff-1", Roles: []domain.Role{domain.RoleStaff}}
	supplierUser = domain.Caller{UserID: "vendor-1", Roles: []domain.Role{domain.RoleSupplier}}
	buyer        = domain.Caller{UserID: "buyer-1", Roles: []domain.Role{domain.RoleBuyer}}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.EventType)
	}
	return types
}

// StorefrontLifecycleTestSuite прогоняет сквозные сценарии модерации,
// оформления и отгрузки поверх in-memory хранилища.
type StorefrontLifecycleTestSuite struct {
	suite.Suite

	ctx       context.Context
	store     *memory.Store
	suppliers *supplier.Service
	catalog   *catalog.Service
	orders    *ordering.Service
	carts     *cart.Sessions
	taxonomy  *taxonomy.Service
	worker    *outbox.Worker
	published *recordingPublisher

	supplierID string
	categoryID string
}

func TestStorefrontLifecycle(t *testing.T) {
	suite.Run(t, new(StorefrontLifecycleTestSuite))
}

func (s *StorefrontLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.suppliers = supplier.NewService(s.store, supplier.WithLogger(logger))
	s.catalog = catalog.NewService(s.store,
		catalog.WithLogger(logger),
		catalog.WithCache(cache.NewMemoryCatalogCache(), time.Hour),
	)
	s.orders = ordering.NewService(s.store, payment.NewStubGateway(),
		ordering.WithLogger(logger),
		ordering.WithStockChangedHook(s.catalog.InvalidateCache),
	)
	s.carts = cart.NewSessions(s.catalog, s.orders, cart.WithLogger(logger))
	s.taxonomy = taxonomy.NewService(s.store,
		taxonomy.WithLogger(logger),
		taxonomy.WithChangeHook(s.catalog.InvalidateCache),
	)
	s.published = &recordingPublisher{}
	s.worker = outbox.NewWorker(s.store.Outbox(), s.published, outbox.WithLogger(logger))

	account, err := s.suppliers.Register(s.ctx, supplierUser, supplier.RegisterInput{CompanyName: "Lamp Works"})
	s.Require().NoError(err)
	_, err = s.suppliers.SetState(s.ctx, staff, account.ID, domain.SupplierStateApproved)
	s.Require().NoError(err)
	s.supplierID = account.ID

	lamps, err := s.taxonomy.CreateCategory(s.ctx, staff, domain.CategoryDraft{Name: "Lamps"})
	s.Require().NoError(err)
	s.categoryID = lamps.ID
}

func (s *StorefrontLifecycleTestSuite) activeEntry(basePrice string, markup string, stock int64) domain.CatalogEntry {
	entry, err := s.catalog.Submit(s.ctx, supplierUser, catalog.SubmitInput{Draft: domain.CatalogDraft{
		Name:          "Desk lamp",
		CategoryID:    s.categoryID,
		BasePrice:     decimal.RequireFromString(basePrice),
		StockQuantity: stock,
	}})
	s.Require().NoError(err)
	s.Require().Equal(domain.CatalogStatePending, entry.State)

	markupPercent := decimal.RequireFromString(markup)
	entry, err = s.catalog.Activate(s.ctx, staff, entry.ID, &markupPercent)
	s.Require().NoError(err)
	return entry
}

func (s *StorefrontLifecycleTestSuite) stockOf(entryID string) int64 {
	entry, err := s.catalog.Get(s.ctx, staff, entryID)
	s.Require().NoError(err)
	return entry.StockQuantity
}

func (s *StorefrontLifecycleTestSuite) TestModerationCheckoutConfirmShip() {
	entry := s.activeEntry("20.00", "10", 5)
	s.True(entry.FinalPrice.Equal(decimal.RequireFromString("22.00")), entry.FinalPrice.String())

	s.Require().NoError(s.carts.AddItem(buyer, "session-1", entry.ID, 3))
	view, err := s.carts.View(s.ctx, buyer, "session-1")
	s.Require().NoError(err)
	s.True(view.Total.Equal(decimal.RequireFromString("66.00")))

	result, err := s.carts.Checkout(s.ctx, buyer, "session-1")
	s.Require().NoError(err)
	s.True(result.Total.Equal(decimal.RequireFromString("66.00")))
	s.Equal(int64(5), s.stockOf(entry.ID))

	confirmed, err := s.orders.Confirm(s.ctx, staff, result.OrderID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStateConfirmed, confirmed.State)
	s.Equal(int64(5), s.stockOf(entry.ID))

	shipped, err := s.orders.Ship(s.ctx, staff, result.OrderID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStateShipped, shipped.State)
	s.Equal(int64(2), s.stockOf(entry.ID))

	orderView, err := s.orders.Get(s.ctx, buyer, result.OrderID)
	s.Require().NoError(err)
	s.Len(orderView.Timeline, 3)

	sales, err := s.suppliers.Sales(s.ctx, supplierUser, s.supplierID, 0)
	s.Require().NoError(err)
	s.Require().Len(sales, 1)
	s.True(sales[0].Earnings.Equal(decimal.RequireFromString("60.00")))

	s.Positive(s.worker.ProcessOnce(s.ctx))
	s.Subset(s.published.types(), []string{
		domain.EventSupplierRegistered,
		domain.EventCatalogEntrySubmitted,
		domain.EventCatalogEntryActivated,
		domain.EventOrderCreated,
		domain.EventOrderConfirmed,
		domain.EventOrderShipped,
	})
}

func (s *StorefrontLifecycleTestSuite) TestCheckoutInsufficientStock() {
	entry := s.activeEntry("20.00", "10", 2)

	_, err := s.orders.Checkout(s.ctx, buyer, []domain.OrderRequestLine{{EntryID: entry.ID, Quantity: 3}})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)

	shortages := domain.ShortagesOf(err)
	s.Require().Len(shortages, 1)
	s.Equal(domain.StockShortage{EntryID: entry.ID, Name: "Desk lamp", Available: 2, Requested: 3}, shortages[0])

	mine, err := s.orders.ListMine(s.ctx, buyer, 0)
	s.Require().NoError(err)
	s.Empty(mine)
}

func (s *StorefrontLifecycleTestSuite) TestActivationRequiresApprovedSupplier() {
	entry, err := s.catalog.Submit(s.ctx, supplierUser, catalog.SubmitInput{Draft: domain.CatalogDraft{
		Name:          "Floor lamp",
		BasePrice:     decimal.RequireFromString("50.00"),
		StockQuantity: 1,
	}})
	s.Require().NoError(err)

	_, err = s.suppliers.SetState(s.ctx, staff, s.supplierID, domain.SupplierStatePending)
	s.Require().NoError(err)

	_, err = s.catalog.Activate(s.ctx, staff, entry.ID, nil)
	s.Require().ErrorIs(err, domain.ErrPrecondition)
	s.ErrorIs(err, domain.ErrSupplierNotApproved)

	stored, err := s.catalog.Get(s.ctx, staff, entry.ID)
	s.Require().NoError(err)
	s.Equal(domain.CatalogStatePending, stored.State)
}

func (s *StorefrontLifecycleTestSuite) TestDeleteEntryWithOrderHistory() {
	entry := s.activeEntry("20.00", "0", 5)

	_, err := s.orders.Checkout(s.ctx, buyer, []domain.OrderRequestLine{{EntryID: entry.ID, Quantity: 1}})
	s.Require().NoError(err)

	err = s.catalog.Delete(s.ctx, supplierUser, entry.ID)
	s.Require().ErrorIs(err, domain.ErrConflict)

	_, err = s.catalog.Get(s.ctx, staff, entry.ID)
	s.NoError(err)
}

func (s *StorefrontLifecycleTestSuite) TestConcurrentShipDecrementsOnce() {
	entry := s.activeEntry("10.00", "0", 5)

	var orderIDs []string
	for i := 0; i < 2; i++ {
		result, err := s.orders.Checkout(s.ctx, buyer, []domain.OrderRequestLine{{EntryID: entry.ID, Quantity: 3}})
		s.Require().NoError(err)
		_, err = s.orders.Confirm(s.ctx, staff, result.OrderID)
		s.Require().NoError(err)
		orderIDs = append(orderIDs, result.OrderID)
	}

	errs := make([]error, len(orderIDs))
	var wg sync.WaitGroup
	for i, orderID := range orderIDs {
		wg.Add(1)
		go func(i int, orderID string) {
			defer wg.Done()
			_, errs[i] = s.orders.Ship(s.ctx, staff, orderID)
		}(i, orderID)
	}
	wg.Wait()

	var shipped, short int
	for _, err := range errs {
		switch {
		case err == nil:
			shipped++
		case errors.Is(err, domain.ErrInsufficientStock):
			short++
		default:
			s.Failf("unexpected ship error", "%v", err)
		}
	}
	s.Equal(1, shipped)
	s.Equal(1, short)
	s.Equal(int64(2), s.stockOf(entry.ID))
}

func (s *StorefrontLifecycleTestSuite) TestRejectAndPay() {
	entry := s.activeEntry("15.00", "0", 5)

	result, err := s.orders.Checkout(s.ctx, buyer, []domain.OrderRequestLine{{EntryID: entry.ID, Quantity: 1}})
	s.Require().NoError(err)

	receipt, err := s.orders.Pay(s.ctx, buyer, result.OrderID)
	s.Require().NoError(err)
	s.True(receipt.Total.Equal(decimal.RequireFromString("15.00")))
	s.NotEmpty(receipt.Reference)

	rejected, err := s.orders.Reject(s.ctx, staff, result.OrderID, "out of season")
	s.Require().NoError(err)
	s.Equal(domain.OrderStateRejected, rejected.State)

	_, err = s.orders.Pay(s.ctx, buyer, result.OrderID)
	s.ErrorIs(err, domain.ErrPrecondition)

	_, err = s.orders.Reject(s.ctx, staff, result.OrderID, "again")
	s.ErrorIs(err, domain.ErrPrecondition)
	s.Equal(int64(5), s.stockOf(entry.ID))
}

func (s *StorefrontLifecycleTestSuite) TestPublicListingReflectsShippedStock() {
	entry := s.activeEntry("20.00", "10", 5)

	listed, err := s.catalog.ListActive(s.ctx, "", "", 0)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(int64(5), listed[0].StockQuantity)

	result, err := s.orders.Checkout(s.ctx, buyer, []domain.OrderRequestLine{{EntryID: entry.ID, Quantity: 3}})
	s.Require().NoError(err)
	_, err = s.orders.Confirm(s.ctx, staff, result.OrderID)
	s.Require().NoError(err)
	_, err = s.orders.Ship(s.ctx, staff, result.OrderID)
	s.Require().NoError(err)

	listed, err = s.catalog.ListActive(s.ctx, "", "", 0)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(int64(2), listed[0].StockQuantity)
}

func (s *StorefrontLifecycleTestSuite) TestSubcategoryListingAndTaxonomyGuards() {
	parentEntry := s.activeEntry("10.00", "0", 3)

	floor, err := s.taxonomy.CreateCategory(s.ctx, staff, domain.CategoryDraft{Name: "Floor lamps", ParentID: s.categoryID})
	s.Require().NoError(err)

	listed, err := s.catalog.ListByCategory(s.ctx, s.categoryID, 0)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)

	child, err := s.catalog.Submit(s.ctx, supplierUser, catalog.SubmitInput{Draft: domain.CatalogDraft{
		Name:          "Floor lamp",
		CategoryID:    floor.ID,
		BasePrice:     decimal.RequireFromString("80.00"),
		StockQuantity: 1,
	}})
	s.Require().NoError(err)
	_, err = s.catalog.Activate(s.ctx, staff, child.ID, nil)
	s.Require().NoError(err)

	listed, err = s.catalog.ListByCategory(s.ctx, s.categoryID, 0)
	s.Require().NoError(err)
	s.Len(listed, 2)

	_, err = s.catalog.Submit(s.ctx, supplierUser, catalog.SubmitInput{Draft: domain.CatalogDraft{
		Name:       "Ghost lamp",
		CategoryID: "missing",
		BasePrice:  decimal.RequireFromString("1.00"),
	}})
	s.ErrorIs(err, domain.ErrValidation)

	s.ErrorIs(s.taxonomy.DeleteCategory(s.ctx, staff, floor.ID), domain.ErrCategoryInUse)
	s.Require().NoError(s.catalog.Delete(s.ctx, staff, child.ID))
	s.Require().NoError(s.taxonomy.DeleteCategory(s.ctx, staff, floor.ID))

	listed, err = s.catalog.ListByCategory(s.ctx, s.categoryID, 0)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(parentEntry.ID, listed[0].ID)

	s.worker.ProcessOnce(s.ctx)
	s.Subset(s.published.types(), []string{domain.EventCategoryCreated, domain.EventCategoryDeleted})
}
