package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderState описывает жизненный цикл заказа.
type OrderState string

const (
	// OrderStatePending — заказ оформлен покупателем и ждёт подтверждения.
	OrderStatePending OrderState = "pending"
	// OrderStateConfirmed — сотрудник подтвердил заказ, остаток ещё не списан.
	OrderStateConfirmed OrderState = "confirmed"
	// OrderStateRejected — заказ отклонён (терминальное состояние).
	OrderStateRejected OrderState = "rejected"
	// OrderStateShipped — заказ отгружен, остаток списан (терминальное состояние).
	OrderStateShipped OrderState = "shipped"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderState) Valid() bool {
	switch s {
	case OrderStatePending, OrderStateConfirmed, OrderStateRejected, OrderStateShipped:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderState) Terminal() bool {
	return s == OrderStateRejected || s == OrderStateShipped
}

// OrderRequestLine — позиция запроса на оформление заказа.
type OrderRequestLine struct {
	EntryID  string
	Quantity int64
}

// NormalizeOrderRequest проверяет запрос и объединяет повторяющиеся товары,
// чтобы остаток проверялся по суммарному количеству.
func NormalizeOrderRequest(lines []OrderRequestLine) ([]OrderRequestLine, error) {
	if len(lines) == 0 {
		return nil, ErrItemsRequired
	}

	result := make([]OrderRequestLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		entryID := strings.TrimSpace(line.EntryID)
		if entryID == "" {
			return nil, &LineError{EntryID: line.EntryID, Err: ErrIDRequired}
		}
		if line.Quantity < 1 {
			return nil, &LineError{EntryID: entryID, Err: ErrQuantityInvalid}
		}
		if idx, ok := index[entryID]; ok {
			result[idx].Quantity += line.Quantity
			continue
		}
		index[entryID] = len(result)
		result = append(result, OrderRequestLine{EntryID: entryID, Quantity: line.Quantity})
	}
	return result, nil
}

// OrderLine — неизменяемый снимок товара, количества и цены на момент оформления.
type OrderLine struct {
	ID      string
	OrderID string
	// EntryID пуст, если товар удалён из каталога после оформления.
	EntryID    string
	EntryName  string
	SupplierID string
	Quantity   int64
	// UnitPrice — цена продажи на момент оформления, никогда не пересчитывается.
	UnitPrice decimal.Decimal
	// BasePrice — цена поставщика на момент оформления, для отчёта о продажах.
	BasePrice decimal.Decimal
}

// Subtotal — стоимость позиции.
func (l OrderLine) Subtotal() decimal.Decimal {
	return LineSubtotal(l.UnitPrice, l.Quantity)
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID        string
	BuyerID   string
	State     OrderState
	Lines     []OrderLine
	Total     decimal.Decimal
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder собирает заказ в статусе pending и считает сумму по позициям.
func NewOrder(id, buyerID string, lines []OrderLine, now time.Time) (Order, error) {
	order := Order{
		ID:        id,
		BuyerID:   buyerID,
		State:     OrderStatePending,
		Lines:     make([]OrderLine, 0, len(lines)),
		Total:     decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, line := range lines {
		line.OrderID = id
		order.Lines = append(order.Lines, line)
		order.Total = order.Total.Add(line.Subtotal())
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return Order{}, errs[0]
	}
	return order, nil
}

// Confirm: pending → confirmed. Проверка остатков выполняется вызывающим до перехода.
func (o *Order) Confirm(now time.Time) error {
	switch o.State {
	case OrderStatePending:
		o.State = OrderStateConfirmed
		o.UpdatedAt = now
		return nil
	case OrderStateConfirmed, OrderStateRejected, OrderStateShipped:
		return ErrOrderNotPending
	default:
		return ErrUnknownState
	}
}

// Reject: pending|confirmed → rejected. Отгруженный заказ отклонить нельзя.
func (o *Order) Reject(now time.Time) error {
	switch o.State {
	case OrderStatePending, OrderStateConfirmed:
		o.State = OrderStateRejected
		o.UpdatedAt = now
		return nil
	case OrderStateShipped:
		return ErrOrderAlreadyShipped
	case OrderStateRejected:
		return ErrOrderAlreadyRejected
	default:
		return ErrUnknownState
	}
}

// Ship: confirmed → shipped. Списание остатков выполняется вызывающим в той же транзакции.
func (o *Order) Ship(now time.Time) error {
	switch o.State {
	case OrderStateConfirmed:
		o.State = OrderStateShipped
		o.UpdatedAt = now
		return nil
	case OrderStatePending, OrderStateRejected, OrderStateShipped:
		return ErrOrderNotConfirmed
	default:
		return ErrUnknownState
	}
}

// CheckPayable проверяет предусловие оплаты: заказ должен быть pending.
// Оплата не меняет статус.
func (o Order) CheckPayable() error {
	if o.State != OrderStatePending {
		return ErrOrderNotPending
	}
	return nil
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o Order) ValidateInvariants() []error {
	var errs []error

	if o.BuyerID == "" {
		errs = append(errs, ErrOrderBuyerRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if !o.State.Valid() {
		errs = append(errs, ErrUnknownState)
	}

	calc := decimal.Zero
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, ErrQuantityInvalid)
		}
		if line.UnitPrice.IsNegative() {
			errs = append(errs, ErrUnitPriceInvalid)
		}
		calc = calc.Add(line.Subtotal())
	}
	if !calc.Equal(o.Total) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// Receipt — подтверждение оплаты-заглушки.
type Receipt struct {
	OrderID   string
	Total     decimal.Decimal
	Reference string
	PaidAt    time.Time
}

// SupplierSale — строка отчёта о продажах поставщика.
type SupplierSale struct {
	OrderID    string
	OrderState OrderState
	EntryID    string
	EntryName  string
	Quantity   int64
	BasePrice  decimal.Decimal
	Earnings   decimal.Decimal
	SoldAt     time.Time
}
