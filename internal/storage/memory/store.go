package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// state — зафиксированное содержимое хранилища.
type state struct {
	entries   map[string]domain.CatalogEntry
	suppliers map[string]domain.SupplierAccount
	orders    map[string]domain.Order
	timeline  map[string][]domain.TimelineEvent
	outbox    map[string]outboxRecord
	outboxSeq int64

	categories    map[string]domain.Category
	deliveryModes map[string]domain.DeliveryMode
}

func newState() *state {
	return &state{
		entries:   make(map[string]domain.CatalogEntry),
		suppliers: make(map[string]domain.SupplierAccount),
		orders:    make(map[string]domain.Order),
		timeline:  make(map[string][]domain.TimelineEvent),
		outbox:    make(map[string]outboxRecord),

		categories:    make(map[string]domain.Category),
		deliveryModes: make(map[string]domain.DeliveryMode),
	}
}

// clone делает копию для транзакции. Позиции заказов неизменяемы,
// поэтому срезы Lines разделяются между копиями.
func (s *state) clone() *state {
	dst := &state{
		entries:   make(map[string]domain.CatalogEntry, len(s.entries)),
		suppliers: make(map[string]domain.SupplierAccount, len(s.suppliers)),
		orders:    make(map[string]domain.Order, len(s.orders)),
		timeline:  make(map[string][]domain.TimelineEvent, len(s.timeline)),
		outbox:    make(map[string]outboxRecord, len(s.outbox)),
		outboxSeq: s.outboxSeq,

		categories:    make(map[string]domain.Category, len(s.categories)),
		deliveryModes: make(map[string]domain.DeliveryMode, len(s.deliveryModes)),
	}
	for id, entry := range s.entries {
		dst.entries[id] = entry
	}
	for id, supplier := range s.suppliers {
		dst.suppliers[id] = supplier
	}
	for id, order := range s.orders {
		dst.orders[id] = order
	}
	for id, events := range s.timeline {
		dst.timeline[id] = append([]domain.TimelineEvent(nil), events...)
	}
	for id, rec := range s.outbox {
		dst.outbox[id] = rec
	}
	for id, category := range s.categories {
		dst.categories[id] = category
	}
	for id, mode := range s.deliveryModes {
		dst.deliveryModes[id] = mode
	}
	return dst
}

// Store — in-memory хранилище для локальной разработки и тестов.
// Транзакции сериализуются одним мьютексом и работают с копией состояния,
// которая подменяет зафиксированное состояние только при успехе fn.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{state: newState()}
}

// WithinTx выполняет fn в транзакции. Вложенные вызовы WithinTx не поддерживаются.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.state.clone()
	if err := fn(ctx, &unitOfWork{st: draft}); err != nil {
		return err
	}
	s.state = draft
	return nil
}

// Outbox возвращает репозиторий outbox для фонового воркера (вне транзакций сервиса).
func (s *Store) Outbox() domain.OutboxRepository {
	return &lockedOutbox{store: s}
}

// Timeline возвращает репозиторий таймлайна для чтения вне транзакций.
func (s *Store) Timeline() domain.TimelineRepository {
	return &lockedTimeline{store: s}
}

func (s *Store) locked(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

type unitOfWork struct {
	st *state
}

func (u *unitOfWork) Catalog() domain.CatalogRepository    { return catalogRepository{st: u.st} }
func (u *unitOfWork) Suppliers() domain.SupplierRepository { return supplierRepository{st: u.st} }
func (u *unitOfWork) Categories() domain.CategoryRepository {
	return categoryRepository{st: u.st}
}
func (u *unitOfWork) DeliveryModes() domain.DeliveryModeRepository {
	return deliveryModeRepository{st: u.st}
}
func (u *unitOfWork) Orders() domain.OrderRepository      { return orderRepository{st: u.st} }
func (u *unitOfWork) Timeline() domain.TimelineRepository { return timelineRepository{st: u.st} }
func (u *unitOfWork) Outbox() domain.OutboxRepository     { return &outboxRepository{st: u.st} }

var (
	_ domain.TxManager  = (*Store)(nil)
	_ domain.UnitOfWork = (*unitOfWork)(nil)
)
