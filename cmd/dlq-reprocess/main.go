package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

var knownAggregates = map[string]struct{}{
	domain.AggregateOrder:        {},
	domain.AggregateCatalogEntry: {},
	domain.AggregateSupplier:     {},
	domain.AggregateCategory:     {},
	domain.AggregateDeliveryMode: {},
}

type config struct {
	brokers     []string
	sourceTopic string
	// targetTopic пуст — топик берётся из сообщения (original_topic или тип агрегата).
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
	filter      replayFilter
}

// replayFilter ограничивает переотправку типами агрегатов и событий.
// Пустое множество пропускает всё.
type replayFilter struct {
	aggregates map[string]struct{}
	eventTypes map[string]struct{}
}

func (f replayFilter) allows(msg replayMessage) bool {
	if len(f.aggregates) > 0 {
		if _, ok := f.aggregates[msg.aggregateType]; !ok {
			return false
		}
	}
	if len(f.eventTypes) > 0 {
		if _, ok := f.eventTypes[msg.eventType]; !ok {
			return false
		}
	}
	return true
}

func (f replayFilter) String() string {
	if len(f.aggregates) == 0 && len(f.eventTypes) == 0 {
		return "none"
	}
	return fmt.Sprintf("aggregates=%s event_types=%s", joinSet(f.aggregates), joinSet(f.eventTypes))
}

type replayMessage struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string

	aggregateType string
	eventType     string
}

// outboxDLQPayload — payload, которое outbox worker кладёт в DLQ-конверт
// вместо исходного события.
type outboxDLQPayload struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

var newReplayDependencies = func(cfg config) (offsetClient, partitionConsumerSource, replayProducer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = "storefront-dlq-scan"
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	consumer := saramaConsumerAdapter{consumer: rawConsumer}

	if !cfg.execute {
		return client, consumer, nil, nil
	}

	producer, err := sarama.NewSyncProducer(cfg.brokers, kafka.ProducerConfig("storefront-dlq-replay"))
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return client, consumer, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw    string
		aggregatesRaw string
		eventTypesRaw string
		cfg           config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: STOREFRONT_KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&cfg.targetTopic, "target-topic", "", "override target topic; default routes by original topic or aggregate type")
	flag.StringVar(&aggregatesRaw, "aggregates", "", "replay only these aggregate types, comma-separated (order,catalog_entry,supplier,category,delivery_mode)")
	flag.StringVar(&eventTypesRaw, "event-types", "", "replay only these event types, comma-separated")
	flag.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("STOREFRONT_KAFKA_BROKERS")
	}

	cfg.brokers = app.ParseBrokers(brokersRaw)
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or STOREFRONT_KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		return config{}, fmt.Errorf("source-topic is required")
	}
	if cfg.targetTopic == cfg.sourceTopic {
		return config{}, fmt.Errorf("target-topic must differ from source-topic")
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}

	cfg.filter.aggregates = parseSet(aggregatesRaw)
	for aggregate := range cfg.filter.aggregates {
		if _, ok := knownAggregates[aggregate]; !ok {
			return config{}, fmt.Errorf("unknown aggregate type %q", aggregate)
		}
	}
	cfg.filter.eventTypes = parseSet(eventTypesRaw)

	return cfg, nil
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": firstNonEmpty(cfg.targetTopic, "auto"),
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
		"filter":       cfg.filter.String(),
	}).Info("starting dlq replay")

	client, consumer, producer, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		if consumer != nil {
			_ = consumer.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	r, err := newReplayer(cfg, client, consumer, producer)
	if err != nil {
		return err
	}
	stats, err := r.run(ctx)
	if err != nil {
		return err
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": stats.processed,
		"replayed":  stats.replayed,
		"skipped":   stats.skipped,
		"filtered":  stats.filtered,
	}).Info("dlq replay finished")

	return nil
}

// replayStats — итог сканирования. processed включает все прочитанные записи:
// replayed + skipped (нераспознанные) + filtered (отсеянные фильтром).
type replayStats struct {
	processed int
	replayed  int
	skipped   int
	filtered  int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
	s.filtered += other.filtered
}

// replayer читает DLQ-топик по партициям и переотправляет распознанные записи.
type replayer struct {
	cfg      config
	client   offsetClient
	consumer partitionConsumerSource
	producer replayProducer
}

func newReplayer(cfg config, client offsetClient, consumer partitionConsumerSource, producer replayProducer) (*replayer, error) {
	if client == nil || consumer == nil {
		return nil, fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && producer == nil {
		return nil, fmt.Errorf("producer is required in execute mode")
	}
	return &replayer{cfg: cfg, client: client, consumer: consumer, producer: producer}, nil
}

// run обходит партиции по возрастанию номера, пока не исчерпан общий limit.
func (r *replayer) run(ctx context.Context) (replayStats, error) {
	var total replayStats

	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", r.cfg.sourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.processed >= r.cfg.limit {
			break
		}
		stats, err := r.partition(ctx, partition, r.cfg.limit-total.processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// partition читает не более limit записей, опубликованных до начала сканирования.
// Сканирование партиции заканчивается на границе newest или по idle timeout.
func (r *replayer) partition(ctx context.Context, partition int32, limit int) (replayStats, error) {
	var stats replayStats
	if limit <= 0 {
		return stats, nil
	}

	start, end, err := r.bounds(partition, limit)
	if err != nil || end <= start {
		return stats, err
	}

	pc, err := r.consumer.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.cfg.idleTimeout)

			if err := r.handle(msg, &stats); err != nil {
				return stats, err
			}
			if msg.Offset+1 >= end {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *replayer) bounds(partition int32, limit int) (int64, int64, error) {
	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}

	start := oldest
	if r.cfg.fromNewest && newest-int64(limit) > oldest {
		start = newest - int64(limit)
	}
	return start, newest, nil
}

func (r *replayer) handle(msg *sarama.ConsumerMessage, stats *replayStats) error {
	stats.processed++
	logger := log.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	replay, ok, err := extractReplayMessage(msg, r.cfg.targetTopic)
	if err != nil {
		stats.skipped++
		logger.WithError(err).Warn("skip unsupported dlq message")
		return nil
	}
	if !ok {
		stats.skipped++
		return nil
	}
	if !r.cfg.filter.allows(replay) {
		stats.filtered++
		return nil
	}

	if r.cfg.execute {
		if err := publishReplay(r.producer, replay); err != nil {
			return fmt.Errorf("publish replay message: %w", err)
		}
	} else {
		logger.WithFields(log.Fields{
			"target_topic":   replay.topic,
			"key":            replay.key,
			"aggregate_type": replay.aggregateType,
			"event_type":     replay.eventType,
		}).Info("dlq replay candidate")
	}
	stats.replayed++
	return nil
}

func publishReplay(producer replayProducer, msg replayMessage) error {
	if producer == nil {
		return fmt.Errorf("producer is nil")
	}

	producerMessage := &sarama.ProducerMessage{
		Topic:     msg.topic,
		Key:       sarama.StringEncoder(msg.key),
		Value:     sarama.ByteEncoder(msg.value),
		Timestamp: time.Now().UTC(),
	}
	for key, value := range msg.headers {
		producerMessage.Headers = append(producerMessage.Headers, sarama.RecordHeader{
			Key:   []byte(key),
			Value: []byte(value),
		})
	}

	_, _, err := producer.SendMessage(producerMessage)
	return err
}

// extractReplayMessage восстанавливает исходное сообщение из записи DLQ.
// Поддерживаются два формата: kafka.DeadLetter от consumer и конверт outbox
// worker с outboxDLQPayload внутри. ok=false — запись не похожа ни на один из них.
func extractReplayMessage(msg *sarama.ConsumerMessage, overrideTopic string) (replayMessage, bool, error) {
	var deadLetter kafka.DeadLetter
	if err := json.Unmarshal(msg.Value, &deadLetter); err == nil && deadLetter.OriginalValue != "" {
		replay := replayMessage{
			topic: firstNonEmpty(overrideTopic, deadLetter.OriginalTopic, kafka.TopicOrders),
			key:   deadLetter.OriginalKey,
			value: []byte(deadLetter.OriginalValue),
		}
		// Тело исходного события нужно только для фильтра; битое тело переотправляется как есть.
		var original kafka.Envelope
		if json.Unmarshal(replay.value, &original) == nil {
			replay.aggregateType = original.AggregateType
			replay.eventType = original.EventType
		}
		return replay, true, nil
	}

	var envelope kafka.Envelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return replayMessage{}, false, nil
	}
	if len(envelope.Payload) == 0 || string(envelope.Payload) == "null" {
		return replayMessage{}, false, nil
	}

	var dlqPayload outboxDLQPayload
	if err := json.Unmarshal(envelope.Payload, &dlqPayload); err != nil {
		return replayMessage{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(dlqPayload.Payload) == 0 {
		return replayMessage{}, false, fmt.Errorf("outbox dlq payload does not contain original event payload")
	}

	original := kafka.Envelope{
		ID:            firstNonEmpty(dlqPayload.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(dlqPayload.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(dlqPayload.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(dlqPayload.EventType, envelope.EventType),
		Payload:       dlqPayload.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	if original.EventType == "" {
		return replayMessage{}, false, fmt.Errorf("outbox dlq payload has no event_type")
	}
	encoded, err := json.Marshal(original)
	if err != nil {
		return replayMessage{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	return replayMessage{
		topic: firstNonEmpty(overrideTopic, kafka.TopicFor(original.AggregateType)),
		key:   firstNonEmpty(original.AggregateID, original.ID),
		value: encoded,
		headers: map[string]string{
			kafka.HeaderEventType: original.EventType,
			kafka.HeaderMessageID: original.ID,
		},
		aggregateType: original.AggregateType,
		eventType:     original.EventType,
	}, true, nil
}

func parseSet(raw string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			set[item] = struct{}{}
		}
	}
	return set
}

func joinSet(set map[string]struct{}) string {
	if len(set) == 0 {
		return "*"
	}
	items := make([]string, 0, len(set))
	for item := range set {
		items = append(items, item)
	}
	sort.Strings(items)
	return strings.Join(items, ",")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
