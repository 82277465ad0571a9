package domain

import (
	"context"
	"time"
)

// CatalogFilter задаёт выборку товаров. Пустые поля не ограничивают выборку.
type CatalogFilter struct {
	States     []CatalogState
	SupplierID string
	CategoryID string
	// CategoryIDs — товар в любой из категорий (категория с подкатегориями).
	CategoryIDs    []string
	DeliveryModeID string
	InStockOnly    bool
	Limit          int
}

// CatalogRepository описывает требования к хранилищу товаров.
type CatalogRepository interface {
	// Create сохраняет новый товар.
	Create(ctx context.Context, entry CatalogEntry) error
	// Get возвращает товар или ErrCatalogEntryNotFound.
	Get(ctx context.Context, id string) (CatalogEntry, error)
	// GetForUpdate читает последнюю зафиксированную версию и блокирует строку до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (CatalogEntry, error)
	// List возвращает товары по фильтру, новые первыми.
	List(ctx context.Context, filter CatalogFilter) ([]CatalogEntry, error)
	// Save применяет обновления с учётом optimistic locking.
	Save(ctx context.Context, entry CatalogEntry) error
	// Delete удаляет товар.
	Delete(ctx context.Context, id string) error
}

// SupplierRepository описывает требования к хранилищу поставщиков.
type SupplierRepository interface {
	Create(ctx context.Context, supplier SupplierAccount) error
	Get(ctx context.Context, id string) (SupplierAccount, error)
	// GetByUserID возвращает аккаунт поставщика, которым владеет пользователь.
	GetByUserID(ctx context.Context, userID string) (SupplierAccount, error)
	// List возвращает поставщиков; пустой state — без фильтра.
	List(ctx context.Context, state SupplierState, limit int) ([]SupplierAccount, error)
	Save(ctx context.Context, supplier SupplierAccount) error
}

// CategoryRepository описывает требования к хранилищу категорий.
type CategoryRepository interface {
	Create(ctx context.Context, category Category) error
	// Get возвращает категорию или ErrCategoryNotFound.
	Get(ctx context.Context, id string) (Category, error)
	// List возвращает категории по имени; parentID == "" — все категории.
	List(ctx context.Context, parentID string) ([]Category, error)
	Save(ctx context.Context, category Category) error
	Delete(ctx context.Context, id string) error
}

// DeliveryModeRepository описывает требования к хранилищу способов доставки.
type DeliveryModeRepository interface {
	Create(ctx context.Context, mode DeliveryMode) error
	// Get возвращает способ доставки или ErrDeliveryModeNotFound.
	Get(ctx context.Context, id string) (DeliveryMode, error)
	List(ctx context.Context) ([]DeliveryMode, error)
	Save(ctx context.Context, mode DeliveryMode) error
	Delete(ctx context.Context, id string) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет заказ вместе со всеми позициями.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// GetForUpdate читает заказ и блокирует его до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (Order, error)
	// ListByBuyer возвращает заказы покупателя, новые первыми.
	ListByBuyer(ctx context.Context, buyerID string, limit int) ([]Order, error)
	// ListByState возвращает заказы в статусе, старые первыми (очередь обработки).
	ListByState(ctx context.Context, state OrderState, limit int) ([]Order, error)
	// Save применяет смену статуса с учётом optimistic locking. Позиции не меняются.
	Save(ctx context.Context, order Order) error
	// HasLinesForEntry сообщает, ссылается ли хоть одна позиция на товар.
	HasLinesForEntry(ctx context.Context, entryID string) (bool, error)
	// ListSupplierSales возвращает проданные позиции товаров поставщика.
	ListSupplierSales(ctx context.Context, supplierID string, limit int) ([]SupplierSale, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, responseCode int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, responseCode int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// UnitOfWork — набор репозиториев, работающих в одной транзакции.
type UnitOfWork interface {
	Catalog() CatalogRepository
	Suppliers() SupplierRepository
	Categories() CategoryRepository
	DeliveryModes() DeliveryModeRepository
	Orders() OrderRepository
	Timeline() TimelineRepository
	Outbox() OutboxRepository
}

// TxManager выполняет fn атомарно: либо фиксируются все изменения, либо ни одного.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}
