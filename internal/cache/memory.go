package cache

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type memoryItem struct {
	entries   []domain.CatalogEntry
	expiresAt time.Time
}

// MemoryCatalogCache — кэш выборок в памяти процесса, для одного экземпляра и тестов.
type MemoryCatalogCache struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryCatalogCache создаёт пустой кэш.
func NewMemoryCatalogCache() *MemoryCatalogCache {
	return &MemoryCatalogCache{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (c *MemoryCatalogCache) GetListing(_ context.Context, key string) ([]domain.CatalogEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok || !c.now().Before(item.expiresAt) {
		return nil, false, nil
	}
	return append([]domain.CatalogEntry(nil), item.entries...), true, nil
}

func (c *MemoryCatalogCache) SetListing(_ context.Context, key string, entries []domain.CatalogEntry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = memoryItem{
		entries:   append([]domain.CatalogEntry(nil), entries...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *MemoryCatalogCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]memoryItem)
	return nil
}

// Len возвращает число закэшированных выборок.
func (c *MemoryCatalogCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

var _ domain.CatalogCache = (*MemoryCatalogCache)(nil)
