package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Topics витрины.
const (
	TopicOrders          = "storefront.orders"
	TopicCatalog         = "storefront.catalog"
	TopicSuppliers       = "storefront.suppliers"
	TopicTaxonomy        = "storefront.taxonomy"
	TopicDeadLetterQueue = "storefront.dlq"
)

// Kafka headers.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
	HeaderMessageID     = "x-message-id"
)

// Envelope — формат события в топиках витрины.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// DeadLetter — сообщение, которое не удалось обработать после всех попыток.
type DeadLetter struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	Attempts          int    `json:"attempts"`
}

// TopicFor выбирает топик по типу агрегата.
func TopicFor(aggregateType string) string {
	switch aggregateType {
	case domain.AggregateCatalogEntry:
		return TopicCatalog
	case domain.AggregateSupplier:
		return TopicSuppliers
	case domain.AggregateCategory, domain.AggregateDeliveryMode:
		return TopicTaxonomy
	default:
		return TopicOrders
	}
}

// ParseEnvelope разбирает событие из сообщения.
func ParseEnvelope(message *sarama.ConsumerMessage) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}
	if envelope.EventType == "" {
		return nil, fmt.Errorf("event envelope has no event_type")
	}
	return &envelope, nil
}
