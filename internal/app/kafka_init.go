package app

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

// ParseBrokers разбирает список брокеров через запятую, пропуская пустые элементы.
func ParseBrokers(raw string) []string {
	var brokers []string
	for _, broker := range strings.Split(raw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// initKafkaProducer создаёт producer, если брокеры заданы.
// Возвращает nil, nil при пустом списке.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		return nil, err
	}
	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// outboxPublishers выбирает публикаторы outbox: Kafka с DLQ или лог.
func outboxPublishers(producer *kafka.Producer, logger *log.Entry) (domain.OutboxPublisher, domain.OutboxPublisher) {
	if producer == nil {
		logger.Info("kafka is not configured, outbox events go to log")
		return outbox.NewLogPublisher(logger.WithField("component", "outbox-log-publisher")), nil
	}
	return kafka.NewOutboxPublisher(producer), kafka.NewDLQPublisher(producer)
}

// startCatalogConsumer подписывает кэш каталога на события каталога,
// чтобы правки на другой реплике сбрасывали локальные выборки.
func startCatalogConsumer(
	ctx context.Context,
	cfg Config,
	producer *kafka.Producer,
	invalidate func(ctx context.Context),
	logger *log.Entry,
) *kafka.Consumer {
	if len(cfg.KafkaBrokers) == 0 {
		return nil
	}

	options := []kafka.ConsumerOption{
		kafka.WithConsumerLogger(logger.WithField("component", "catalog-consumer")),
	}
	if producer != nil {
		options = append(options, kafka.WithDLQ(producer))
	}
	consumer, err := kafka.NewConsumer(
		cfg.KafkaBrokers,
		cfg.KafkaConsumerGroup,
		[]string{kafka.TopicCatalog, kafka.TopicTaxonomy},
		kafka.CatalogInvalidationHandler(invalidate),
		options...,
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create catalog consumer, cache invalidation stays local")
		return nil
	}
	consumer.Start(ctx)
	return consumer
}

// closeKafkaProducer закрывает producer, если он создан.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// stopConsumer останавливает consumer, если он запущен.
func stopConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
