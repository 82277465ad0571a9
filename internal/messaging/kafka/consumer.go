package kafka

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 200 * time.Millisecond
)

var tracer = otel.Tracer("storefront/kafka")

// MessageHandler обрабатывает сообщение из Kafka.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithDLQ отправляет необработанные сообщения в TopicDeadLetterQueue.
func WithDLQ(producer *Producer) ConsumerOption {
	return func(c *Consumer) {
		c.dlq = producer
	}
}

// WithMaxRetries задаёт число повторов обработки сообщения.
func WithMaxRetries(n int) ConsumerOption {
	return func(c *Consumer) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryDelay задаёт базовую задержку между повторами.
func WithRetryDelay(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d >= 0 {
			c.retryDelay = d
		}
	}
}

// WithConsumerLogger задаёт logger.
func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Consumer читает топики в составе consumer group. Сообщение повторяется
// до maxRetries раз, затем уходит в DLQ.
type Consumer struct {
	consumer   sarama.ConsumerGroup
	topics     []string
	handler    MessageHandler
	logger     *log.Entry
	dlq        *Producer
	maxRetries int
	retryDelay time.Duration
	wg         sync.WaitGroup
}

// NewConsumer подключается к брокерам.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, options ...ConsumerOption) (*Consumer, error) {
	config := sarama.NewConfig()
	config.ClientID = "storefront"
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newConsumer(group, topics, handler, options...), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		consumer:   group,
		topics:     topics,
		handler:    handler,
		logger:     log.WithField("component", "kafka-consumer"),
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Start запускает чтение в фоне до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume завершается при каждом rebalance.
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте сессии.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается при завершении сессии.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения партиции.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := c.handle(session.Context(), message); err != nil {
				c.logger.WithError(err).WithFields(log.Fields{
					"topic":     message.Topic,
					"partition": message.Partition,
					"offset":    message.Offset,
				}).Error("message processing failed after all retries")
				continue
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// handle выполняет handler с повторами; после исчерпания попыток сообщение
// уходит в DLQ и считается обработанным.
func (c *Consumer) handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	ctx = otel.GetTextMapPropagator().Extract(ctx, consumerCarrier{msg: message})
	ctx, span := tracer.Start(ctx, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", message.Topic),
			attribute.Int64("messaging.kafka.offset", message.Offset),
		),
	)
	defer span.End()

	attempts := retryCount(message)
	var err error
	for attempts <= c.maxRetries {
		attempts++
		if err = c.handler(ctx, message); err == nil {
			return nil
		}
		if attempts > c.maxRetries {
			break
		}

		c.logger.WithError(err).WithFields(log.Fields{
			"topic":       message.Topic,
			"attempt":     attempts,
			"max_retries": c.maxRetries,
		}).Warn("message processing failed, will retry")
		if waitErr := sleepCtx(ctx, c.retryDelay*time.Duration(attempts)); waitErr != nil {
			span.RecordError(waitErr)
			return waitErr
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if c.dlq == nil {
		return err
	}
	if dlqErr := c.sendToDLQ(ctx, message, err, attempts); dlqErr != nil {
		return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
	}
	c.logger.WithFields(log.Fields{
		"topic":    message.Topic,
		"attempts": attempts,
	}).Info("message sent to DLQ after max retries")
	return nil
}

func (c *Consumer) sendToDLQ(ctx context.Context, message *sarama.ConsumerMessage, processingErr error, attempts int) error {
	failedAt := time.Now().UTC().Format(time.RFC3339)
	return c.dlq.PublishEvent(ctx, TopicDeadLetterQueue, string(message.Key), DeadLetter{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      processingErr.Error(),
		FailedAt:          failedAt,
		Attempts:          attempts,
	})
}

// retryCount — число попыток, уже сделанных до повторной публикации сообщения.
func retryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == HeaderRetryCount {
			if count, err := strconv.Atoi(string(header.Value)); err == nil && count > 0 {
				return count
			}
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CatalogInvalidationHandler сбрасывает кэш каталога на каждое событие товара
// или справочника, в том числе опубликованное другими репликами сервиса.
func CatalogInvalidationHandler(invalidate func(ctx context.Context)) MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		envelope, err := ParseEnvelope(message)
		if err != nil {
			return err
		}
		switch envelope.AggregateType {
		case domain.AggregateCatalogEntry, domain.AggregateCategory, domain.AggregateDeliveryMode:
			invalidate(ctx)
		}
		return nil
	}
}
