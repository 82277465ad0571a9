package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	defaultCacheTTL  = time.Minute
)

var tracer = otel.Tracer("storefront/catalog")

// SubmitInput — новый товар. SupplierID задаёт только сотрудник, создающий
// товар от имени поставщика; поставщик всегда создаёт товар для себя.
type SubmitInput struct {
	SupplierID string
	Draft      domain.CatalogDraft
}

// ListFilter — выборка товаров. Mine ограничивает выборку собственными
// товарами поставщика в любом статусе.
type ListFilter struct {
	CategoryID  string
	SupplierID  string
	State       domain.CatalogState
	InStockOnly bool
	Mine        bool
	Limit       int
}

// EntryEvent — payload событий товара в outbox.
type EntryEvent struct {
	EntryID       string          `json:"entry_id"`
	SupplierID    string          `json:"supplier_id"`
	State         string          `json:"state"`
	BasePrice     decimal.Decimal `json:"base_price"`
	MarkupPercent decimal.Decimal `json:"markup_percent"`
	FinalPrice    decimal.Decimal `json:"final_price"`
	StockQuantity int64           `json:"stock_quantity"`
	ActorID       string          `json:"actor_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
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

// WithCache включает кэш публичных выборок.
func WithCache(cache domain.CatalogCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// Service ведёт модерацию товаров и публичные выборки каталога.
type Service struct {
	tx       domain.TxManager
	cache    domain.CatalogCache
	cacheTTL time.Duration
	logger   *log.Entry
	metrics  *metrics.StorefrontMetrics
	clock    domain.Clock
	newID    func() string
	pick     func(n int) int
}

// NewService создаёт сервис каталога.
func NewService(tx domain.TxManager, options ...Option) *Service {
	s := &Service{
		tx:       tx,
		cacheTTL: defaultCacheTTL,
		logger:   log.New().WithField("component", "catalog"),
		clock:    domain.SystemClock,
		newID:    uuid.NewString,
		pick:     rand.IntN,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Submit создаёт товар в статусе pending с нулевой наценкой.
// Поставщик должен быть approved.
func (s *Service) Submit(ctx context.Context, caller domain.Caller, input SubmitInput) (domain.CatalogEntry, error) {
	var entry domain.CatalogEntry
	err := s.mutate(ctx, "submit", func(ctx context.Context, uow domain.UnitOfWork) error {
		account, err := s.submittingSupplier(ctx, uow, caller, input.SupplierID)
		if err != nil {
			return err
		}
		if !account.CanSell() {
			return domain.ErrSupplierNotApproved
		}
		if err := checkReferences(ctx, uow, input.Draft); err != nil {
			return err
		}

		entry, err = domain.NewCatalogEntry(s.newID(), account.ID, input.Draft, s.clock())
		if err != nil {
			return err
		}
		if err := uow.Catalog().Create(ctx, entry); err != nil {
			return err
		}
		return s.record(ctx, uow, entry, caller, domain.EventCatalogEntrySubmitted)
	})
	if err != nil {
		return domain.CatalogEntry{}, err
	}

	s.metrics.RecordCatalogTransition("submitted")
	s.logger.WithFields(log.Fields{"entry_id": entry.ID, "supplier_id": entry.SupplierID}).Info("catalog entry submitted")
	return entry, nil
}

// Edit применяет правки. Правка владельцем возвращает товар на модерацию,
// правка сотрудником сохраняет статус.
func (s *Service) Edit(ctx context.Context, caller domain.Caller, id string, draft domain.CatalogDraft) (domain.CatalogEntry, error) {
	return s.transition(ctx, caller, id, "edit", domain.EventCatalogEntryEdited, true,
		func(ctx context.Context, uow domain.UnitOfWork, entry *domain.CatalogEntry, byOwner bool) error {
			if err := checkReferences(ctx, uow, draft); err != nil {
				return err
			}
			return entry.ApplyEdit(draft, byOwner, s.clock())
		})
}

// Activate одобряет товар. markup == nil оставляет текущую наценку.
func (s *Service) Activate(ctx context.Context, caller domain.Caller, id string, markup *decimal.Decimal) (domain.CatalogEntry, error) {
	if err := caller.RequireStaff("activate catalog entry"); err != nil {
		return domain.CatalogEntry{}, err
	}
	return s.transition(ctx, caller, id, "activate", domain.EventCatalogEntryActivated, false,
		func(ctx context.Context, uow domain.UnitOfWork, entry *domain.CatalogEntry, _ bool) error {
			account, err := uow.Suppliers().Get(ctx, entry.SupplierID)
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrSupplierNotApproved
			}
			if err != nil {
				return err
			}
			return entry.Activate(account, markup, s.clock())
		})
}

// Suspend снимает товар с продажи: сотрудник или владелец.
func (s *Service) Suspend(ctx context.Context, caller domain.Caller, id string) (domain.CatalogEntry, error) {
	return s.transition(ctx, caller, id, "suspend", domain.EventCatalogEntrySuspended, true,
		func(_ context.Context, _ domain.UnitOfWork, entry *domain.CatalogEntry, _ bool) error {
			return entry.Suspend(s.clock())
		})
}

// Reactivate возвращает снятый товар на модерацию: сотрудник или владелец.
func (s *Service) Reactivate(ctx context.Context, caller domain.Caller, id string) (domain.CatalogEntry, error) {
	return s.transition(ctx, caller, id, "reactivate", domain.EventCatalogEntryReactivated, true,
		func(_ context.Context, _ domain.UnitOfWork, entry *domain.CatalogEntry, _ bool) error {
			return entry.Reactivate(s.clock())
		})
}

// Delete удаляет товар в любом статусе, если на него не ссылается ни одна
// позиция заказа: история заказов должна оставаться читаемой.
func (s *Service) Delete(ctx context.Context, caller domain.Caller, id string) error {
	err := s.mutate(ctx, "delete", func(ctx context.Context, uow domain.UnitOfWork) error {
		entry, err := uow.Catalog().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.authorizeOwnerOrStaff(ctx, uow, caller, entry); err != nil {
			return err
		}

		referenced, err := uow.Orders().HasLinesForEntry(ctx, id)
		if err != nil {
			return fmt.Errorf("check order lines: %w", err)
		}
		if referenced {
			return domain.ErrEntryHasOrderLines
		}
		if err := uow.Catalog().Delete(ctx, id); err != nil {
			return err
		}
		return s.record(ctx, uow, entry, caller, domain.EventCatalogEntryDeleted)
	})
	if err != nil {
		return err
	}

	s.metrics.RecordCatalogTransition("deleted")
	s.invalidate(ctx)
	s.logger.WithFields(log.Fields{"entry_id": id, "actor_id": caller.UserID}).Info("catalog entry deleted")
	return nil
}

// Get возвращает товар с учётом правила видимости. Скрытый товар неотличим
// от несуществующего.
func (s *Service) Get(ctx context.Context, caller domain.Caller, id string) (domain.CatalogEntry, error) {
	var entry domain.CatalogEntry
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		var err error
		entry, err = uow.Catalog().Get(ctx, id)
		if err != nil {
			return err
		}
		if entry.Sellable() || caller.IsStaff() {
			return nil
		}
		supplierID, err := s.callerSupplierID(ctx, uow, caller)
		if err != nil {
			return err
		}
		if !entry.VisibleTo(caller, supplierID) {
			return domain.ErrCatalogEntryNotFound
		}
		return nil
	})
	if err != nil {
		return domain.CatalogEntry{}, err
	}
	return entry, nil
}

// List возвращает товары, видимые вызывающему. Сотрудник фильтрует
// произвольно, поставщик с Mine видит свои товары в любом статусе,
// остальные получают только активные товары.
func (s *Service) List(ctx context.Context, caller domain.Caller, filter ListFilter) ([]domain.CatalogEntry, error) {
	limit := clampLimit(filter.Limit)
	if filter.State != "" && !filter.State.Valid() {
		return nil, domain.ErrUnknownState
	}

	switch {
	case caller.IsStaff():
		repoFilter := domain.CatalogFilter{
			SupplierID:  filter.SupplierID,
			CategoryID:  filter.CategoryID,
			InStockOnly: filter.InStockOnly,
			Limit:       limit,
		}
		if filter.State != "" {
			repoFilter.States = []domain.CatalogState{filter.State}
		}
		return s.list(ctx, repoFilter)
	case filter.Mine:
		var entries []domain.CatalogEntry
		err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
			supplierID, err := s.callerSupplierID(ctx, uow, caller)
			if err != nil {
				return err
			}
			if supplierID == "" {
				return domain.ErrNoSupplierAccount
			}
			repoFilter := domain.CatalogFilter{SupplierID: supplierID, CategoryID: filter.CategoryID, Limit: limit}
			if filter.State != "" {
				repoFilter.States = []domain.CatalogState{filter.State}
			}
			if err := expandCategory(ctx, uow, &repoFilter); err != nil {
				return err
			}
			entries, err = uow.Catalog().List(ctx, repoFilter)
			return err
		})
		return entries, err
	default:
		return s.ListActive(ctx, filter.CategoryID, filter.SupplierID, limit)
	}
}

// ListActive — публичная выборка активных товаров, кэшируется.
func (s *Service) ListActive(ctx context.Context, categoryID, supplierID string, limit int) ([]domain.CatalogEntry, error) {
	limit = clampLimit(limit)
	key := fmt.Sprintf("active:category=%s:supplier=%s:limit=%d", categoryID, supplierID, limit)

	if s.cache != nil {
		entries, ok, err := s.cache.GetListing(ctx, key)
		if err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("catalog cache read failed")
		}
		s.metrics.RecordCacheLookup(ok)
		if ok {
			return entries, nil
		}
	}

	entries, err := s.list(ctx, domain.CatalogFilter{
		States:     []domain.CatalogState{domain.CatalogStateActive},
		CategoryID: categoryID,
		SupplierID: supplierID,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetListing(ctx, key, entries, s.cacheTTL); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("catalog cache write failed")
		}
	}
	return entries, nil
}

// ListByCategory — активные товары категории и её подкатегорий.
func (s *Service) ListByCategory(ctx context.Context, categoryID string, limit int) ([]domain.CatalogEntry, error) {
	if categoryID == "" {
		return nil, fmt.Errorf("category: %w", domain.ErrIDRequired)
	}
	return s.ListActive(ctx, categoryID, "", limit)
}

// Featured возвращает случайный активный товар, который есть в наличии.
func (s *Service) Featured(ctx context.Context) (domain.CatalogEntry, error) {
	entries, err := s.list(ctx, domain.CatalogFilter{
		States:      []domain.CatalogState{domain.CatalogStateActive},
		InStockOnly: true,
		Limit:       maxListLimit,
	})
	if err != nil {
		return domain.CatalogEntry{}, err
	}
	if len(entries) == 0 {
		return domain.CatalogEntry{}, domain.ErrCatalogEntryNotFound
	}
	return entries[s.pick(len(entries))], nil
}

// InvalidateCache сбрасывает кэш выборок; вызывается и при событиях из брокера.
func (s *Service) InvalidateCache(ctx context.Context) {
	s.invalidate(ctx)
}

type transitionFunc func(ctx context.Context, uow domain.UnitOfWork, entry *domain.CatalogEntry, byOwner bool) error

// transition выполняет переход товара под блокировкой строки. ownerAllowed
// разрешает операцию владельцу-поставщику помимо сотрудника.
func (s *Service) transition(
	ctx context.Context,
	caller domain.Caller,
	id, operation, eventType string,
	ownerAllowed bool,
	apply transitionFunc,
) (domain.CatalogEntry, error) {
	var updated domain.CatalogEntry
	err := s.mutate(ctx, operation, func(ctx context.Context, uow domain.UnitOfWork) error {
		entry, err := uow.Catalog().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		byOwner := false
		if ownerAllowed {
			byOwner, err = s.authorizeOwnerOrStaff(ctx, uow, caller, entry)
			if err != nil {
				return err
			}
		}

		if err := apply(ctx, uow, &entry, byOwner); err != nil {
			return err
		}
		if err := uow.Catalog().Save(ctx, entry); err != nil {
			return fmt.Errorf("save catalog entry: %w", err)
		}
		updated = entry
		return s.record(ctx, uow, entry, caller, eventType)
	})
	if err != nil {
		return domain.CatalogEntry{}, err
	}

	s.metrics.RecordCatalogTransition(operation)
	s.invalidate(ctx)
	s.logger.WithFields(log.Fields{
		"entry_id": updated.ID,
		"state":    updated.State,
		"actor_id": caller.UserID,
	}).Infof("catalog entry %s", operation)
	return updated, nil
}

// authorizeOwnerOrStaff возвращает byOwner=true, если действует владелец, а не сотрудник.
func (s *Service) authorizeOwnerOrStaff(ctx context.Context, uow domain.UnitOfWork, caller domain.Caller, entry domain.CatalogEntry) (bool, error) {
	if caller.IsStaff() {
		return false, nil
	}
	supplierID, err := s.callerSupplierID(ctx, uow, caller)
	if err != nil {
		return false, err
	}
	switch {
	case supplierID == "":
		return false, domain.ErrNoSupplierAccount
	case supplierID != entry.SupplierID:
		return false, domain.ErrNotOwner
	default:
		return true, nil
	}
}

func (s *Service) submittingSupplier(ctx context.Context, uow domain.UnitOfWork, caller domain.Caller, supplierID string) (domain.SupplierAccount, error) {
	if caller.IsStaff() && supplierID != "" {
		return uow.Suppliers().Get(ctx, supplierID)
	}
	if caller.IsAnonymous() {
		return domain.SupplierAccount{}, domain.ErrNoSupplierAccount
	}
	account, err := uow.Suppliers().GetByUserID(ctx, caller.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.SupplierAccount{}, domain.ErrNoSupplierAccount
	}
	if err != nil {
		return domain.SupplierAccount{}, err
	}
	if supplierID != "" && supplierID != account.ID {
		return domain.SupplierAccount{}, domain.ErrNotOwner
	}
	return account, nil
}

// callerSupplierID возвращает ID аккаунта поставщика вызывающего или "".
func (s *Service) callerSupplierID(ctx context.Context, uow domain.UnitOfWork, caller domain.Caller) (string, error) {
	if caller.IsAnonymous() {
		return "", nil
	}
	account, err := uow.Suppliers().GetByUserID(ctx, caller.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return account.ID, nil
}

func (s *Service) mutate(ctx context.Context, operation string, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	ctx, span := tracer.Start(ctx, "catalog."+operation)
	defer span.End()

	started := time.Now()
	err := s.tx.WithinTx(ctx, fn)
	s.metrics.ObserveOperation("catalog_"+operation, started, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Service) list(ctx context.Context, filter domain.CatalogFilter) ([]domain.CatalogEntry, error) {
	var entries []domain.CatalogEntry
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		if err := expandCategory(ctx, uow, &filter); err != nil {
			return err
		}
		var err error
		entries, err = uow.Catalog().List(ctx, filter)
		return err
	})
	return entries, err
}

// expandCategory заменяет CategoryID на саму категорию и её подкатегории.
// Неизвестная категория остаётся фильтром по идентификатору.
func expandCategory(ctx context.Context, uow domain.UnitOfWork, filter *domain.CatalogFilter) error {
	if filter.CategoryID == "" {
		return nil
	}
	children, err := uow.Categories().List(ctx, filter.CategoryID)
	if err != nil {
		return fmt.Errorf("list subcategories: %w", err)
	}
	ids := make([]string, 0, len(children)+1)
	ids = append(ids, filter.CategoryID)
	for _, child := range children {
		ids = append(ids, child.ID)
	}
	filter.CategoryIDs = ids
	filter.CategoryID = ""
	return nil
}

// checkReferences проверяет, что категория и способ доставки товара существуют.
func checkReferences(ctx context.Context, uow domain.UnitOfWork, draft domain.CatalogDraft) error {
	if id := draft.CategoryID; id != "" {
		if _, err := uow.Categories().Get(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("category %s: %w", id, domain.ErrUnknownCategory)
			}
			return err
		}
	}
	if id := draft.DeliveryModeID; id != "" {
		if _, err := uow.DeliveryModes().Get(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("delivery mode %s: %w", id, domain.ErrUnknownDeliveryMode)
			}
			return err
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, uow domain.UnitOfWork, entry domain.CatalogEntry, caller domain.Caller, eventType string) error {
	return outbox.Record(ctx, uow.Outbox(), domain.AggregateCatalogEntry, entry.ID, eventType, EntryEvent{
		EntryID:       entry.ID,
		SupplierID:    entry.SupplierID,
		State:         string(entry.State),
		BasePrice:     entry.BasePrice,
		MarkupPercent: entry.MarkupPercent,
		FinalPrice:    entry.FinalPrice,
		StockQuantity: entry.StockQuantity,
		ActorID:       caller.UserID,
		OccurredAt:    s.clock(),
	})
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WithError(err).Warn("catalog cache invalidation failed")
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
