package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// runtimeDependencies — хранилище и кэш, выбранные по конфигурации.
type runtimeDependencies struct {
	tx              domain.TxManager
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	catalogCache    domain.CatalogCache

	storageChecker healthcheck.Checker
	cacheChecker   healthcheck.Checker

	closers []func() error
}

// close освобождает ресурсы в обратном порядке открытия.
func (d *runtimeDependencies) close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
	d.closers = nil
}

// initRuntimeDependencies открывает хранилище и кэш каталога.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{}

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewStore()
		deps.tx = store
		deps.outboxRepo = store.Outbox()
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires dsn")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				deps.close(logger)
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.tx = store
		deps.outboxRepo = store.Outbox()
		deps.idempotencyRepo = store.Idempotency()
		deps.storageChecker = healthcheck.NewChecker("postgres", store.Ping)
		logger.Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCatalogCache(cache.NewRedisClient(cfg.RedisAddr), "storefront")
		deps.closers = append(deps.closers, redisCache.Close)
		deps.catalogCache = redisCache
		// Без Redis каталог читается из хранилища, поэтому проверка не критична.
		deps.cacheChecker = healthcheck.NewOptionalChecker("redis", redisCache.Ping)
		logger.WithField("addr", cfg.RedisAddr).Info("using redis catalog cache")
	} else {
		deps.catalogCache = cache.NewMemoryCatalogCache()
	}

	return deps, nil
}
