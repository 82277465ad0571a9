package domain

import "time"

// Типы агрегатов в outbox.
const (
	AggregateCatalogEntry = "catalog_entry"
	AggregateSupplier     = "supplier"
	AggregateOrder        = "order"
	AggregateCategory     = "category"
	AggregateDeliveryMode = "delivery_mode"
)

// Типы событий, публикуемых через transactional outbox.
const (
	EventCatalogEntrySubmitted   = "catalog.entry.submitted"
	EventCatalogEntryEdited      = "catalog.entry.edited"
	EventCatalogEntryActivated   = "catalog.entry.activated"
	EventCatalogEntrySuspended   = "catalog.entry.suspended"
	EventCatalogEntryReactivated = "catalog.entry.reactivated"
	EventCatalogEntryDeleted     = "catalog.entry.deleted"
	EventCatalogStockChanged     = "catalog.entry.stock_changed"

	EventSupplierRegistered   = "supplier.registered"
	EventSupplierStateChanged = "supplier.state_changed"

	EventOrderCreated   = "order.created"
	EventOrderConfirmed = "order.confirmed"
	EventOrderRejected  = "order.rejected"
	EventOrderShipped   = "order.shipped"
	EventOrderPaid      = "order.paid"

	EventCategoryCreated     = "taxonomy.category.created"
	EventCategoryUpdated     = "taxonomy.category.updated"
	EventCategoryDeleted     = "taxonomy.category.deleted"
	EventDeliveryModeCreated = "taxonomy.delivery_mode.created"
	EventDeliveryModeUpdated = "taxonomy.delivery_mode.updated"
	EventDeliveryModeDeleted = "taxonomy.delivery_mode.deleted"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
