package domain

import (
	"github.com/shopspring/decimal"
)

// CartLine — позиция корзины.
type CartLine struct {
	EntryID  string
	Quantity int64
}

// Cart — несохраняемая корзина покупателя. Порядок позиций совпадает с порядком добавления.
// Остатки и статус товаров здесь не проверяются: это делается в момент оформления заказа.
// Корзина не потокобезопасна, синхронизация на уровне сессии.
type Cart struct {
	lines []CartLine
}

// NewCart создаёт пустую корзину.
func NewCart() *Cart {
	return &Cart{}
}

// AddItem добавляет товар или увеличивает количество существующей позиции.
func (c *Cart) AddItem(entryID string, qty int64) error {
	if entryID == "" {
		return ErrIDRequired
	}
	if qty < 1 {
		return ErrQuantityInvalid
	}
	if idx := c.indexOf(entryID); idx >= 0 {
		c.lines[idx].Quantity += qty
		return nil
	}
	c.lines = append(c.lines, CartLine{EntryID: entryID, Quantity: qty})
	return nil
}

// SetQuantity задаёт количество; qty <= 0 удаляет позицию.
func (c *Cart) SetQuantity(entryID string, qty int64) {
	idx := c.indexOf(entryID)
	switch {
	case qty <= 0:
		c.RemoveItem(entryID)
	case idx >= 0:
		c.lines[idx].Quantity = qty
	default:
		c.lines = append(c.lines, CartLine{EntryID: entryID, Quantity: qty})
	}
}

// RemoveItem удаляет позицию, если она есть.
func (c *Cart) RemoveItem(entryID string) {
	idx := c.indexOf(entryID)
	if idx < 0 {
		return
	}
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
}

// Clear очищает корзину.
func (c *Cart) Clear() {
	c.lines = nil
}

// IsEmpty сообщает, что в корзине нет позиций.
func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Lines возвращает копию позиций.
func (c *Cart) Lines() []CartLine {
	return append([]CartLine(nil), c.lines...)
}

// TotalItems — сумма количеств по всем позициям.
func (c *Cart) TotalItems() int64 {
	var total int64
	for _, line := range c.lines {
		total += line.Quantity
	}
	return total
}

// Total считает сумму по текущим ценам товаров. Позиции, цену которых
// priceOf не знает (товар удалён или скрыт), в сумму не входят.
func (c *Cart) Total(priceOf func(entryID string) (decimal.Decimal, bool)) decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		price, ok := priceOf(line.EntryID)
		if !ok {
			continue
		}
		total = total.Add(LineSubtotal(price, line.Quantity))
	}
	return total
}

// ToOrderRequest фиксирует текущие позиции для оформления заказа.
func (c *Cart) ToOrderRequest() []OrderRequestLine {
	result := make([]OrderRequestLine, 0, len(c.lines))
	for _, line := range c.lines {
		result = append(result, OrderRequestLine{EntryID: line.EntryID, Quantity: line.Quantity})
	}
	return result
}

func (c *Cart) indexOf(entryID string) int {
	for i, line := range c.lines {
		if line.EntryID == entryID {
			return i
		}
	}
	return -1
}
