package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
)

const defaultIdleTTL = 30 * time.Minute

// ErrSessionRequired — запрос к корзине без идентификатора сессии.
var ErrSessionRequired = fmt.Errorf("cart session id is required: %w", domain.ErrValidation)

// Catalog — источник текущих цен для отображения корзины.
type Catalog interface {
	Get(ctx context.Context, caller domain.Caller, id string) (domain.CatalogEntry, error)
}

// Checkout оформляет заказ по позициям корзины.
type Checkout interface {
	Checkout(ctx context.Context, caller domain.Caller, lines []domain.OrderRequestLine) (ordering.CheckoutResult, error)
}

// LineView — позиция корзины с ценой на момент чтения. Available=false,
// если товар удалён или больше не виден покупателю.
type LineView struct {
	EntryID   string
	Name      string
	Quantity  int64
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
	Available bool
}

// View — корзина с ценами на момент чтения.
type View struct {
	Lines      []LineView
	TotalItems int64
	Total      decimal.Decimal
}

// Option настраивает Sessions.
type Option func(*Sessions)

// WithIdleTTL задаёт время жизни неиспользуемой корзины.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Sessions) {
		if ttl > 0 {
			s.idleTTL = ttl
		}
	}
}

// WithClock подменяет часы.
func WithClock(clock domain.Clock) Option {
	return func(s *Sessions) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetrics включает метрику числа корзин.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(s *Sessions) {
		s.metrics = m
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Sessions) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// session: cart защищён mu; ownerID и lastSeen защищены Sessions.mu.
type session struct {
	mu       sync.Mutex
	cart     *domain.Cart
	ownerID  string
	lastSeen time.Time
}

// Sessions хранит корзины в памяти процесса по идентификатору сессии.
// Операции одной сессии выполняются последовательно. Корзина привязывается
// к первому аутентифицированному пользователю; чужой вызывающий получает
// ErrNotOwner, даже если знает идентификатор сессии.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*session
	catalog  Catalog
	checkout Checkout
	idleTTL  time.Duration
	clock    domain.Clock
	metrics  *metrics.StorefrontMetrics
	logger   *log.Entry
}

// NewSessions создаёт хранилище корзин.
func NewSessions(catalog Catalog, checkout Checkout, options ...Option) *Sessions {
	s := &Sessions{
		sessions: make(map[string]*session),
		catalog:  catalog,
		checkout: checkout,
		idleTTL:  defaultIdleTTL,
		clock:    domain.SystemClock,
		logger:   log.New().WithField("component", "cart"),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// AddItem добавляет товар; qty < 1 считается за 1.
func (s *Sessions) AddItem(caller domain.Caller, sessionID, entryID string, qty int64) error {
	if qty < 1 {
		qty = 1
	}
	return s.with(caller, sessionID, true, func(c *domain.Cart) error {
		return c.AddItem(entryID, qty)
	})
}

// SetQuantity задаёт количество; qty <= 0 удаляет позицию.
func (s *Sessions) SetQuantity(caller domain.Caller, sessionID, entryID string, qty int64) error {
	if entryID == "" {
		return domain.ErrIDRequired
	}
	return s.with(caller, sessionID, qty > 0, func(c *domain.Cart) error {
		c.SetQuantity(entryID, qty)
		return nil
	})
}

// RemoveItem удаляет позицию.
func (s *Sessions) RemoveItem(caller domain.Caller, sessionID, entryID string) error {
	return s.with(caller, sessionID, false, func(c *domain.Cart) error {
		c.RemoveItem(entryID)
		return nil
	})
}

// Clear очищает корзину.
func (s *Sessions) Clear(caller domain.Caller, sessionID string) error {
	return s.with(caller, sessionID, false, func(c *domain.Cart) error {
		c.Clear()
		return nil
	})
}

// View возвращает корзину с текущими ценами. Остатки здесь не проверяются.
func (s *Sessions) View(ctx context.Context, caller domain.Caller, sessionID string) (View, error) {
	var lines []domain.CartLine
	if err := s.with(caller, sessionID, false, func(c *domain.Cart) error {
		lines = c.Lines()
		return nil
	}); err != nil {
		return View{}, err
	}

	view := View{Lines: make([]LineView, 0, len(lines)), Total: decimal.Zero}
	prices := make(map[string]decimal.Decimal, len(lines))
	snapshot := domain.NewCart()
	for _, line := range lines {
		item := LineView{EntryID: line.EntryID, Quantity: line.Quantity, UnitPrice: decimal.Zero, Subtotal: decimal.Zero}

		entry, err := s.catalog.Get(ctx, caller, line.EntryID)
		switch {
		case err == nil && entry.Sellable():
			item.Name = entry.Name
			item.UnitPrice = entry.FinalPrice
			item.Subtotal = domain.LineSubtotal(entry.FinalPrice, line.Quantity)
			item.Available = true
			prices[line.EntryID] = entry.FinalPrice
		case err == nil:
			item.Name = entry.Name
		case !errors.Is(err, domain.ErrNotFound):
			return View{}, err
		}

		if err := snapshot.AddItem(line.EntryID, line.Quantity); err != nil {
			return View{}, err
		}
		view.Lines = append(view.Lines, item)
	}

	view.TotalItems = snapshot.TotalItems()
	view.Total = snapshot.Total(func(entryID string) (decimal.Decimal, bool) {
		price, ok := prices[entryID]
		return price, ok
	})
	return view, nil
}

// Checkout оформляет заказ из корзины и очищает её только при успехе.
func (s *Sessions) Checkout(ctx context.Context, caller domain.Caller, sessionID string) (ordering.CheckoutResult, error) {
	if sessionID == "" {
		return ordering.CheckoutResult{}, ErrSessionRequired
	}
	sess, err := s.lookup(caller, sessionID, false)
	if err != nil {
		return ordering.CheckoutResult{}, err
	}
	if sess == nil {
		return ordering.CheckoutResult{}, domain.ErrItemsRequired
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	result, err := s.checkout.Checkout(ctx, caller, sess.cart.ToOrderRequest())
	if err != nil {
		return ordering.CheckoutResult{}, err
	}
	sess.cart.Clear()

	s.logger.WithFields(log.Fields{"order_id": result.OrderID, "buyer_id": caller.UserID}).Debug("cart checked out")
	return result, nil
}

// EvictIdle удаляет корзины, не использованные дольше idle TTL.
func (s *Sessions) EvictIdle() int {
	deadline := s.clock().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(deadline) {
			delete(s.sessions, id)
			evicted++
		}
	}
	s.metrics.SetActiveCarts(len(s.sessions))
	return evicted
}

// Len возвращает число корзин в памяти.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// with выполняет fn над корзиной сессии. create=false не создаёт корзину
// для неизвестной сессии: fn получает пустую временную корзину.
func (s *Sessions) with(caller domain.Caller, sessionID string, create bool, fn func(c *domain.Cart) error) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	sess, err := s.lookup(caller, sessionID, create)
	if err != nil {
		return err
	}
	if sess == nil {
		return fn(domain.NewCart())
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(sess.cart)
}

// lookup находит сессию, проверяет владельца и продлевает её жизнь под s.mu,
// поэтому EvictIdle не удалит сессию между lookup и работой с корзиной.
// Первый аутентифицированный вызывающий становится владельцем корзины.
func (s *Sessions) lookup(caller domain.Caller, sessionID string, create bool) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		if !create {
			return nil, nil
		}
		sess = &session{cart: domain.NewCart()}
		s.sessions[sessionID] = sess
		s.metrics.SetActiveCarts(len(s.sessions))
	}

	switch {
	case sess.ownerID == "":
		sess.ownerID = caller.UserID
	case sess.ownerID != caller.UserID:
		return nil, fmt.Errorf("cart session %s: %w", sessionID, domain.ErrNotOwner)
	}
	sess.lastSeen = s.clock()
	return sess, nil
}
