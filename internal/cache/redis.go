package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// RedisCatalogCache хранит выборки каталога в Redis. Инвалидация не удаляет
// ключи, а увеличивает поколение: старые выборки становятся недостижимы и
// истекают по TTL.
type RedisCatalogCache struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisCatalogCache создаёт кэш поверх клиента Redis.
func NewRedisCatalogCache(client redis.UniversalClient, namespace string) *RedisCatalogCache {
	if namespace == "" {
		namespace = "storefront"
	}
	return &RedisCatalogCache{client: client, namespace: namespace}
}

// NewRedisClient создаёт клиента по адресу host:port.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// GetListing читает выборку текущего поколения.
func (c *RedisCatalogCache) GetListing(ctx context.Context, key string) ([]domain.CatalogEntry, bool, error) {
	generation, err := c.generation(ctx)
	if err != nil {
		return nil, false, err
	}

	raw, err := c.client.Get(ctx, c.listingKey(generation, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get listing: %w", err)
	}

	var entries []domain.CatalogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, fmt.Errorf("decode cached listing: %w", err)
	}
	return entries, true, nil
}

// SetListing сохраняет выборку в текущем поколении.
func (c *RedisCatalogCache) SetListing(ctx context.Context, key string, entries []domain.CatalogEntry, ttl time.Duration) error {
	generation, err := c.generation(ctx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}
	if err := c.client.Set(ctx, c.listingKey(generation, key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set listing: %w", err)
	}
	return nil
}

// Invalidate переключает поколение выборок.
func (c *RedisCatalogCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis для readiness.
func (c *RedisCatalogCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close закрывает клиента.
func (c *RedisCatalogCache) Close() error {
	return c.client.Close()
}

func (c *RedisCatalogCache) generation(ctx context.Context) (int64, error) {
	generation, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return generation, nil
}

func (c *RedisCatalogCache) generationKey() string {
	return fmt.Sprintf("%s:catalog:generation", c.namespace)
}

func (c *RedisCatalogCache) listingKey(generation int64, key string) string {
	return fmt.Sprintf("%s:catalog:%d:%s", c.namespace, generation, key)
}

var _ domain.CatalogCache = (*RedisCatalogCache)(nil)
