package ordering

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

const defaultListLimit = 50

var tracer = otel.Tracer("storefront/ordering")

// CheckoutResult — идентификатор созданного заказа и его сумма.
type CheckoutResult struct {
	OrderID string
	Total   decimal.Decimal
}

// OrderView — заказ вместе с историей статусов.
type OrderView struct {
	Order    domain.Order
	Timeline []domain.TimelineEvent
}

// OrderEvent — payload событий заказа в outbox.
type OrderEvent struct {
	OrderID    string          `json:"order_id"`
	BuyerID    string          `json:"buyer_id"`
	State      string          `json:"state"`
	Total      decimal.Decimal `json:"total"`
	Reason     string          `json:"reason,omitempty"`
	Reference  string          `json:"reference,omitempty"`
	ActorID    string          `json:"actor_id"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// StockChangedEvent — payload события списания остатка при отгрузке.
type StockChangedEvent struct {
	EntryID       string    `json:"entry_id"`
	OrderID       string    `json:"order_id"`
	Delta         int64     `json:"delta"`
	StockQuantity int64     `json:"stock_quantity"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает запись метрик.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет часы.
func WithClock(clock domain.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithStockChangedHook задаёт вызов после фиксации списания остатков,
// например сброс кэша выборок каталога.
func WithStockChangedHook(hook func(ctx context.Context)) Option {
	return func(s *Service) {
		s.onStockChanged = hook
	}
}

// Service ведёт жизненный цикл заказа. Каждая операция выполняется одной
// транзакцией: при любой ошибке не фиксируется ничего.
type Service struct {
	tx       domain.TxManager
	payments domain.PaymentGateway
	logger   *log.Entry
	metrics  *metrics.StorefrontMetrics
	clock    domain.Clock
	newID    func() string

	onStockChanged func(ctx context.Context)
}

// NewService создаёт сервис заказов.
func NewService(tx domain.TxManager, payments domain.PaymentGateway, options ...Option) *Service {
	s := &Service{
		tx:       tx,
		payments: payments,
		logger:   log.New().WithField("component", "ordering"),
		clock:    domain.SystemClock,
		newID:    uuid.NewString,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Checkout оформляет заказ покупателя. Каждый товар должен существовать, быть
// активным и иметь достаточный остаток; остаток при этом не списывается.
// Нехватка сообщается сразу по всем позициям.
func (s *Service) Checkout(ctx context.Context, caller domain.Caller, lines []domain.OrderRequestLine) (CheckoutResult, error) {
	if err := caller.RequireRole(domain.RoleBuyer, "checkout"); err != nil {
		return CheckoutResult{}, err
	}
	request, err := domain.NormalizeOrderRequest(lines)
	if err != nil {
		return CheckoutResult{}, err
	}

	var result CheckoutResult
	err = s.run(ctx, "checkout", func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
			now := s.clock()
			orderLines := make([]domain.OrderLine, 0, len(request))
			var shortages []domain.StockShortage

			for _, item := range request {
				entry, err := uow.Catalog().Get(ctx, item.EntryID)
				if errors.Is(err, domain.ErrNotFound) {
					return &domain.LineError{EntryID: item.EntryID, Err: domain.ErrUnknownItem}
				}
				if err != nil {
					return fmt.Errorf("load catalog entry %s: %w", item.EntryID, err)
				}
				if !entry.Sellable() {
					return &domain.LineError{EntryID: item.EntryID, Err: domain.ErrEntryNotActive}
				}
				if shortage, short := entry.Shortage(item.Quantity); short {
					shortages = append(shortages, shortage)
					continue
				}

				orderLines = append(orderLines, domain.OrderLine{
					ID:         s.newID(),
					EntryID:    entry.ID,
					EntryName:  entry.Name,
					SupplierID: entry.SupplierID,
					Quantity:   item.Quantity,
					UnitPrice:  entry.FinalPrice,
					BasePrice:  entry.BasePrice,
				})
			}
			if len(shortages) > 0 {
				return &domain.InsufficientStockError{Shortages: shortages}
			}

			order, err := domain.NewOrder(s.newID(), caller.UserID, orderLines, now)
			if err != nil {
				return err
			}
			if err := uow.Orders().Create(ctx, order); err != nil {
				return fmt.Errorf("create order: %w", err)
			}
			if err := s.recordTransition(ctx, uow, order, caller, domain.TimelineOrderCreated, domain.EventOrderCreated, "", ""); err != nil {
				return err
			}

			result = CheckoutResult{OrderID: order.ID, Total: order.Total}
			return nil
		})
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	s.metrics.RecordOrderTransition("created")
	s.logger.WithFields(log.Fields{
		"order_id": result.OrderID,
		"buyer_id": caller.UserID,
		"total":    result.Total.StringFixed(domain.MoneyPlaces),
	}).Info("order created")
	return result, nil
}

// Confirm подтверждает заказ: pending → confirmed. Остатки перепроверяются по
// последним зафиксированным значениям; при нехватке заказ остаётся pending.
func (s *Service) Confirm(ctx context.Context, caller domain.Caller, orderID string) (domain.Order, error) {
	if err := caller.RequireStaff("confirm order"); err != nil {
		return domain.Order{}, err
	}

	var confirmed domain.Order
	err := s.run(ctx, "confirm", func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
			order, err := uow.Orders().GetForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if err := order.Confirm(s.clock()); err != nil {
				return err
			}

			entries, err := s.loadEntries(ctx, uow.Catalog(), order.Lines, false)
			if err != nil {
				return err
			}
			if shortages := shortagesOf(order.Lines, entries); len(shortages) > 0 {
				return &domain.InsufficientStockError{Shortages: shortages}
			}

			if err := uow.Orders().Save(ctx, order); err != nil {
				return fmt.Errorf("save order: %w", err)
			}
			if err := s.recordTransition(ctx, uow, order, caller, domain.TimelineOrderConfirmed, domain.EventOrderConfirmed, "", ""); err != nil {
				return err
			}
			confirmed = order
			return nil
		})
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordOrderTransition("confirmed")
	s.logger.WithFields(log.Fields{"order_id": orderID, "actor_id": caller.UserID}).Info("order confirmed")
	return confirmed, nil
}

// Reject отклоняет заказ из pending или confirmed. Остатки не меняются:
// до отгрузки они и не списывались.
func (s *Service) Reject(ctx context.Context, caller domain.Caller, orderID, reason string) (domain.Order, error) {
	if err := caller.RequireStaff("reject order"); err != nil {
		return domain.Order{}, err
	}

	var rejected domain.Order
	err := s.run(ctx, "reject", func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
			order, err := uow.Orders().GetForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if err := order.Reject(s.clock()); err != nil {
				return err
			}
			if err := uow.Orders().Save(ctx, order); err != nil {
				return fmt.Errorf("save order: %w", err)
			}
			if err := s.recordTransition(ctx, uow, order, caller, domain.TimelineOrderRejected, domain.EventOrderRejected, reason, ""); err != nil {
				return err
			}
			rejected = order
			return nil
		})
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordOrderTransition("rejected")
	s.logger.WithFields(log.Fields{"order_id": orderID, "actor_id": caller.UserID, "reason": reason}).Info("order rejected")
	return rejected, nil
}

// Ship отгружает подтверждённый заказ и списывает остатки. Строки товаров
// блокируются в порядке идентификаторов, поэтому конкурентные отгрузки не
// уходят в минус: вторая увидит уже списанный остаток. Позиции удалённых
// товаров считаются исполненными и пропускаются.
func (s *Service) Ship(ctx context.Context, caller domain.Caller, orderID string) (domain.Order, error) {
	if err := caller.RequireStaff("ship order"); err != nil {
		return domain.Order{}, err
	}

	var (
		shipped domain.Order
		units   int64
	)
	err := s.run(ctx, "ship", func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
			now := s.clock()
			order, err := uow.Orders().GetForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if err := order.Ship(now); err != nil {
				return err
			}

			entries, err := s.loadEntries(ctx, uow.Catalog(), order.Lines, true)
			if err != nil {
				return err
			}
			if shortages := shortagesOf(order.Lines, entries); len(shortages) > 0 {
				return &domain.InsufficientStockError{Shortages: shortages}
			}

			requested := requestedQuantities(order.Lines)
			units = 0
			for _, id := range sortedKeys(entries) {
				entry := entries[id]
				qty := requested[id]
				if err := entry.DecrementStock(qty, now); err != nil {
					return err
				}
				if err := uow.Catalog().Save(ctx, entry); err != nil {
					return fmt.Errorf("save catalog entry %s: %w", id, err)
				}
				if err := outbox.Record(ctx, uow.Outbox(), domain.AggregateCatalogEntry, id, domain.EventCatalogStockChanged, StockChangedEvent{
					EntryID:       id,
					OrderID:       order.ID,
					Delta:         -qty,
					StockQuantity: entry.StockQuantity,
					OccurredAt:    now,
				}); err != nil {
					return err
				}
				units += qty
			}

			if err := uow.Orders().Save(ctx, order); err != nil {
				return fmt.Errorf("save order: %w", err)
			}
			if err := s.recordTransition(ctx, uow, order, caller, domain.TimelineOrderShipped, domain.EventOrderShipped, "", ""); err != nil {
				return err
			}
			shipped = order
			return nil
		})
	})
	if err != nil {
		return domain.Order{}, err
	}

	if s.onStockChanged != nil {
		s.onStockChanged(ctx)
	}
	s.metrics.RecordOrderTransition("shipped")
	s.metrics.RecordUnitsShipped(units)
	s.logger.WithFields(log.Fields{"order_id": orderID, "actor_id": caller.UserID, "units": units}).Info("order shipped")
	return shipped, nil
}

// Pay проводит оплату-заглушку. Платить может только владелец pending-заказа;
// статус заказа не меняется.
func (s *Service) Pay(ctx context.Context, caller domain.Caller, orderID string) (domain.Receipt, error) {
	if err := caller.RequireRole(domain.RoleBuyer, "pay order"); err != nil {
		return domain.Receipt{}, err
	}

	var receipt domain.Receipt
	err := s.run(ctx, "pay", func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
			order, err := uow.Orders().GetForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if order.BuyerID != caller.UserID {
				return domain.ErrNotOwner
			}
			if err := order.CheckPayable(); err != nil {
				return err
			}

			reference, err := s.payments.Charge(ctx, order.ID, order.Total)
			if err != nil {
				return fmt.Errorf("charge order %s: %w", order.ID, err)
			}
			if err := s.recordTransition(ctx, uow, order, caller, domain.TimelineOrderPaid, domain.EventOrderPaid, "", reference); err != nil {
				return err
			}

			receipt = domain.Receipt{
				OrderID:   order.ID,
				Total:     order.Total,
				Reference: reference,
				PaidAt:    s.clock(),
			}
			return nil
		})
	})
	if err != nil {
		return domain.Receipt{}, err
	}

	s.metrics.RecordOrderTransition("paid")
	s.logger.WithFields(log.Fields{"order_id": orderID, "reference": receipt.Reference}).Info("order paid")
	return receipt, nil
}

// Get возвращает заказ с таймлайном. Доступен сотрудникам и покупателю-владельцу.
func (s *Service) Get(ctx context.Context, caller domain.Caller, orderID string) (OrderView, error) {
	if caller.IsAnonymous() {
		return OrderView{}, fmt.Errorf("get order requires authentication: %w", domain.ErrForbidden)
	}

	var view OrderView
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		order, err := uow.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !caller.IsStaff() && order.BuyerID != caller.UserID {
			return domain.ErrNotOwner
		}
		events, err := uow.Timeline().List(ctx, orderID)
		if err != nil {
			return fmt.Errorf("load timeline: %w", err)
		}
		view = OrderView{Order: order, Timeline: events}
		return nil
	})
	return view, err
}

// ListMine возвращает заказы вызывающего покупателя, новые первыми.
func (s *Service) ListMine(ctx context.Context, caller domain.Caller, limit int) ([]domain.Order, error) {
	if err := caller.RequireRole(domain.RoleBuyer, "list orders"); err != nil {
		return nil, err
	}

	var orders []domain.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		var err error
		orders, err = uow.Orders().ListByBuyer(ctx, caller.UserID, normalizeLimit(limit))
		return err
	})
	return orders, err
}

// ListByState возвращает очередь заказов в статусе, старые первыми.
func (s *Service) ListByState(ctx context.Context, caller domain.Caller, state domain.OrderState, limit int) ([]domain.Order, error) {
	if err := caller.RequireStaff("list orders by state"); err != nil {
		return nil, err
	}
	if !state.Valid() {
		return nil, domain.ErrUnknownState
	}

	var orders []domain.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		var err error
		orders, err = uow.Orders().ListByState(ctx, state, normalizeLimit(limit))
		return err
	})
	return orders, err
}

// run оборачивает операцию в span и записывает её длительность.
func (s *Service) run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "ordering."+operation)
	defer span.End()

	started := time.Now()
	err := fn(ctx)
	s.metrics.ObserveOperation(operation, started, err)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			s.metrics.RecordInsufficientStock()
			span.SetAttributes(attribute.Int("storefront.shortages", len(domain.ShortagesOf(err))))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WithError(err).WithField("operation", operation).Debug("order operation failed")
	}
	return err
}

func (s *Service) recordTransition(
	ctx context.Context,
	uow domain.UnitOfWork,
	order domain.Order,
	caller domain.Caller,
	timelineType, eventType, reason, reference string,
) error {
	now := s.clock()
	if err := uow.Timeline().Append(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     timelineType,
		Reason:   reason,
		ActorID:  caller.UserID,
		Occurred: now,
	}); err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}

	return outbox.Record(ctx, uow.Outbox(), domain.AggregateOrder, order.ID, eventType, OrderEvent{
		OrderID:    order.ID,
		BuyerID:    order.BuyerID,
		State:      string(order.State),
		Total:      order.Total,
		Reason:     reason,
		Reference:  reference,
		ActorID:    caller.UserID,
		OccurredAt: now,
	})
}

// loadEntries читает товары, на которые ссылаются позиции заказа. Удалённые
// товары в результат не попадают. forUpdate блокирует строки в порядке ID.
func (s *Service) loadEntries(ctx context.Context, repo domain.CatalogRepository, lines []domain.OrderLine, forUpdate bool) (map[string]domain.CatalogEntry, error) {
	ids := sortedKeys(requestedQuantities(lines))
	entries := make(map[string]domain.CatalogEntry, len(ids))

	for _, id := range ids {
		var (
			entry domain.CatalogEntry
			err   error
		)
		if forUpdate {
			entry, err = repo.GetForUpdate(ctx, id)
		} else {
			entry, err = repo.Get(ctx, id)
		}
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load catalog entry %s: %w", id, err)
		}
		entries[id] = entry
	}
	return entries, nil
}

func shortagesOf(lines []domain.OrderLine, entries map[string]domain.CatalogEntry) []domain.StockShortage {
	requested := requestedQuantities(lines)
	var shortages []domain.StockShortage
	for _, id := range sortedKeys(entries) {
		if shortage, short := entries[id].Shortage(requested[id]); short {
			shortages = append(shortages, shortage)
		}
	}
	return shortages
}

// requestedQuantities суммирует количество по товарам; позиции без товара пропускаются.
func requestedQuantities(lines []domain.OrderLine) map[string]int64 {
	result := make(map[string]int64, len(lines))
	for _, line := range lines {
		if line.EntryID == "" {
			continue
		}
		result[line.EntryID] += line.Quantity
	}
	return result
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
