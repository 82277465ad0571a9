package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OutboxPublisher публикует outbox-сообщения, выбирая топик по типу агрегата.
type OutboxPublisher struct {
	producer *Producer
	topicFor func(aggregateType string) string
	now      func() time.Time
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)

// NewOutboxPublisher маршрутизирует события по TopicFor.
func NewOutboxPublisher(producer *Producer) *OutboxPublisher {
	return &OutboxPublisher{producer: producer, topicFor: TopicFor, now: time.Now}
}

// NewDLQPublisher отправляет все сообщения в TopicDeadLetterQueue.
func NewDLQPublisher(producer *Producer) *OutboxPublisher {
	return &OutboxPublisher{
		producer: producer,
		topicFor: func(string) string { return TopicDeadLetterQueue },
		now:      time.Now,
	}
}

// Publish оборачивает сообщение в Envelope. Ключ — ID агрегата, чтобы
// события одного заказа или товара шли в одну партицию по порядку.
func (p *OutboxPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	payload := json.RawMessage(event.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	data, err := json.Marshal(Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return p.producer.Publish(ctx, p.topicFor(event.AggregateType), key, data, map[string]string{
		HeaderEventType: event.EventType,
		HeaderMessageID: event.ID,
	})
}
