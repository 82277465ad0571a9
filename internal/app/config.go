package app

import (
	"fmt"
	"time"
)

// StorageDriver выбирает реализацию хранилища.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	GRPCAddr    string
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers пуст — события outbox пишутся в лог, инвалидация кэша локальная.
	KafkaBrokers       []string
	KafkaConsumerGroup string

	// RedisAddr пуст — кэш каталога в памяти процесса.
	RedisAddr       string
	CatalogCacheTTL time.Duration

	JWTSecret string
	JWTTTL    time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyTTL time.Duration
	// IdempotencyCleanupInterval задаёт период фоновой очистки: ключи и простаивающие корзины.
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	CartIdleTTL time.Duration

	OTelEnabled  bool
	OTelEndpoint string

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                    ":50051",
		HTTPAddr:                    ":8080",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		KafkaConsumerGroup:          "storefront-catalog-cache",
		CatalogCacheTTL:             time.Minute,
		JWTTTL:                      time.Hour,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            50 * time.Millisecond,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		CartIdleTTL:                 30 * time.Minute,
		ShutdownTimeout:             5 * time.Second,
	}
}

// Validate проверяет обязательные настройки до запуска компонентов.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres storage requires dsn")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.GRPCAddr == "" || c.HTTPAddr == "" || c.MetricsAddr == "" {
		return fmt.Errorf("listen addresses are required")
	}
	return nil
}
