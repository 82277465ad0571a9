package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOutboxPublisher_RoutesByAggregate(t *testing.T) {
	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		aggregate string
		wantTopic string
	}{
		{name: "order", aggregate: domain.AggregateOrder, wantTopic: TopicOrders},
		{name: "catalog", aggregate: domain.AggregateCatalogEntry, wantTopic: TopicCatalog},
		{name: "supplier", aggregate: domain.AggregateSupplier, wantTopic: TopicSuppliers},
		{name: "category", aggregate: domain.AggregateCategory, wantTopic: TopicTaxonomy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := mocks.NewSyncProducer(t, nil)
			publisher := NewOutboxPublisher(newProducer(mock))
			publisher.now = func() time.Time { return published }

			mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
				assert.Equal(t, tt.wantTopic, msg.Topic)

				key, err := msg.Key.Encode()
				require.NoError(t, err)
				assert.Equal(t, "agg-1", string(key))

				value, err := msg.Value.Encode()
				require.NoError(t, err)
				var envelope Envelope
				require.NoError(t, json.Unmarshal(value, &envelope))
				assert.Equal(t, "msg-1", envelope.ID)
				assert.Equal(t, tt.aggregate, envelope.AggregateType)
				assert.Equal(t, "test.event", envelope.EventType)
				assert.JSONEq(t, `{"a":1}`, string(envelope.Payload))
				assert.True(t, envelope.PublishedAt.Equal(published))
				assert.Equal(t, "msg-1", headerValue(msg, HeaderMessageID))
				return nil
			})

			err := publisher.Publish(context.Background(), domain.OutboxMessage{
				ID:            "msg-1",
				AggregateType: tt.aggregate,
				AggregateID:   "agg-1",
				EventType:     "test.event",
				Payload:       []byte(`{"a":1}`),
			})
			require.NoError(t, err)
			require.NoError(t, mock.Close())
		})
	}
}

func TestDLQPublisher_UsesDeadLetterTopic(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	publisher := NewDLQPublisher(newProducer(mock))

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, TopicDeadLetterQueue, msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "msg-2", string(key), "message id is the key when aggregate id is empty")
		return nil
	})

	require.NoError(t, publisher.Publish(context.Background(), domain.OutboxMessage{ID: "msg-2", AggregateType: domain.AggregateOrder, EventType: "order.created"}))
	require.NoError(t, mock.Close())
}

func TestOutboxPublisher_NotInitialized(t *testing.T) {
	var publisher *OutboxPublisher
	assert.Error(t, publisher.Publish(context.Background(), domain.OutboxMessage{ID: "x"}))
}
