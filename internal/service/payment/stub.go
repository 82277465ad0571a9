package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// StubGateway — платёжная заглушка: деньги не списываются, выдаётся только
// номер квитанции. Ошибку можно задать для тестов.
type StubGateway struct {
	mu      sync.Mutex
	err     error
	charges []Charge
}

// Charge — принятый заглушкой платёж.
type Charge struct {
	OrderID   string
	Amount    decimal.Decimal
	Reference string
}

// NewStubGateway возвращает заглушку, принимающую любой платёж.
func NewStubGateway() *StubGateway {
	return &StubGateway{}
}

// FailWith заставляет следующие вызовы Charge возвращать err; nil сбрасывает ошибку.
func (g *StubGateway) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// Charge принимает платёж и возвращает номер квитанции.
func (g *StubGateway) Charge(ctx context.Context, orderID string, amount decimal.Decimal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if amount.IsNegative() {
		return "", fmt.Errorf("charge %s: %w", orderID, domain.ErrUnitPriceInvalid)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}

	reference := "stub-" + uuid.NewString()
	g.charges = append(g.charges, Charge{OrderID: orderID, Amount: amount, Reference: reference})
	return reference, nil
}

// Charges возвращает копию принятых платежей.
func (g *StubGateway) Charges() []Charge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Charge(nil), g.charges...)
}

var _ domain.PaymentGateway = (*StubGateway)(nil)
