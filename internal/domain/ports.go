package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentGateway — внешний платёжный провайдер. В текущей версии это заглушка,
// которая только выдаёт номер квитанции.
type PaymentGateway interface {
	Charge(ctx context.Context, orderID string, amount decimal.Decimal) (string, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// CatalogCache кэширует публичные выборки активных товаров.
type CatalogCache interface {
	// GetListing возвращает закэшированную выборку; ok=false при промахе.
	GetListing(ctx context.Context, key string) (entries []CatalogEntry, ok bool, err error)
	SetListing(ctx context.Context, key string, entries []CatalogEntry, ttl time.Duration) error
	// Invalidate сбрасывает все выборки после изменения каталога.
	Invalidate(ctx context.Context) error
}

// Clock возвращает текущее время; подменяется в тестах.
type Clock func() time.Time

// SystemClock — часы по умолчанию (UTC).
func SystemClock() time.Time {
	return time.Now().UTC()
}
