package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	envLogLevel                    = "STOREFRONT_LOG_LEVEL"
	envGRPCAddr                    = "STOREFRONT_GRPC_ADDR"
	envHTTPAddr                    = "STOREFRONT_HTTP_ADDR"
	envMetricsAddr                 = "STOREFRONT_METRICS_ADDR"
	envStorageDriver               = "STOREFRONT_STORAGE_DRIVER"
	envPostgresDSN                 = "STOREFRONT_POSTGRES_DSN"
	envPostgresAutoMigrate         = "STOREFRONT_POSTGRES_AUTO_MIGRATE"
	envKafkaBrokers                = "STOREFRONT_KAFKA_BROKERS"
	envKafkaConsumerGroup          = "STOREFRONT_KAFKA_CONSUMER_GROUP"
	envRedisAddr                   = "STOREFRONT_REDIS_ADDR"
	envCatalogCacheTTL             = "STOREFRONT_CATALOG_CACHE_TTL"
	envJWTSecret                   = "STOREFRONT_JWT_SECRET"
	envJWTTTL                      = "STOREFRONT_JWT_TTL"
	envOutboxPollInterval          = "STOREFRONT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "STOREFRONT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "STOREFRONT_OUTBOX_RETRY_DELAY"
	envIdempotencyTTL              = "STOREFRONT_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "STOREFRONT_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "STOREFRONT_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envCartIdleTTL                 = "STOREFRONT_CART_IDLE_TTL"
	envOTelEnabled                 = "STOREFRONT_OTEL_ENABLED"
	envOTelEndpoint                = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// lookupFunc совпадает с os.LookupEnv; в тестах подменяется картой.
type lookupFunc func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup lookupFunc) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level := log.InfoLevel
	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		parsed, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			log.WithError(err).Warn("invalid log level, using info")
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию,
// а ошибка возвращается как предупреждение.
func readConfigFromEnv(lookup lookupFunc) (app.Config, []error) {
	cfg := app.DefaultConfig()
	r := envReader{lookup: lookup}

	r.str(envGRPCAddr, &cfg.GRPCAddr)
	r.str(envHTTPAddr, &cfg.HTTPAddr)
	r.str(envMetricsAddr, &cfg.MetricsAddr)

	var driver string
	if r.str(envStorageDriver, &driver) {
		cfg.StorageDriver = app.StorageDriver(strings.ToLower(driver))
	}
	r.str(envPostgresDSN, &cfg.PostgresDSN)
	r.boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)

	var brokers string
	if r.str(envKafkaBrokers, &brokers) {
		cfg.KafkaBrokers = app.ParseBrokers(brokers)
	}
	r.str(envKafkaConsumerGroup, &cfg.KafkaConsumerGroup)
	r.str(envRedisAddr, &cfg.RedisAddr)
	r.duration(envCatalogCacheTTL, &cfg.CatalogCacheTTL, false)

	r.str(envJWTSecret, &cfg.JWTSecret)
	r.duration(envJWTTTL, &cfg.JWTTTL, false)

	r.duration(envOutboxPollInterval, &cfg.OutboxPollInterval, false)
	r.positiveInt(envOutboxBatchSize, &cfg.OutboxBatchSize)
	r.positiveInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	r.duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, true)

	r.duration(envIdempotencyTTL, &cfg.IdempotencyTTL, false)
	r.duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, false)
	r.positiveInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	r.duration(envCartIdleTTL, &cfg.CartIdleTTL, false)

	r.boolean(envOTelEnabled, &cfg.OTelEnabled)
	r.str(envOTelEndpoint, &cfg.OTelEndpoint)

	return cfg, r.warnings
}

type envReader struct {
	lookup   lookupFunc
	warnings []error
}

func (r *envReader) value(key string) (string, bool) {
	raw, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func (r *envReader) str(key string, dst *string) bool {
	raw, ok := r.value(key)
	if ok {
		*dst = raw
	}
	return ok
}

func (r *envReader) boolean(key string, dst *bool) {
	raw, ok := r.value(key)
	if !ok {
		return
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		r.warnings = append(r.warnings, fmt.Errorf("%s: invalid boolean %q", key, raw))
	}
}

func (r *envReader) duration(key string, dst *time.Duration, allowZero bool) {
	raw, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed < 0 || (parsed == 0 && !allowZero) {
		r.warnings = append(r.warnings, fmt.Errorf("%s: invalid duration %q", key, raw))
		return
	}
	*dst = parsed
}

func (r *envReader) positiveInt(key string, dst *int) {
	raw, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		r.warnings = append(r.warnings, fmt.Errorf("%s: invalid positive integer %q", key, raw))
		return
	}
	*dst = parsed
}

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения.
	_ = godotenv.Load()

	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.WithError(warning).Warn("ignoring invalid configuration value")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":        version.String(),
		"grpc_addr":      cfg.GRPCAddr,
		"http_addr":      cfg.HTTPAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka":          len(cfg.KafkaBrokers) > 0,
		"redis":          cfg.RedisAddr != "",
	}).Info("запускаем storefront")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("storefront остановлен")
}
