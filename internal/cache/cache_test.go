package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func sampleEntries() []domain.CatalogEntry {
	return []domain.CatalogEntry{{
		ID:            "e-1",
		SupplierID:    "s-1",
		Name:          "Widget",
		BasePrice:     decimal.RequireFromString("20.00"),
		MarkupPercent: decimal.NewFromInt(10),
		FinalPrice:    decimal.RequireFromString("22.00"),
		StockQuantity: 5,
		State:         domain.CatalogStateActive,
	}}
}

func exerciseCache(t *testing.T, c domain.CatalogCache) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := c.GetListing(ctx, "active:all")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetListing(ctx, "active:all", sampleEntries(), time.Minute))

	entries, ok, err := c.GetListing(ctx, "active:all")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, "Widget", entries[0].Name)
	assert.True(t, entries[0].FinalPrice.Equal(decimal.RequireFromString("22.00")))

	require.NoError(t, c.Invalidate(ctx))

	_, ok, err = c.GetListing(ctx, "active:all")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCatalogCache(t *testing.T) {
	t.Parallel()
	exerciseCache(t, NewMemoryCatalogCache())
}

func TestMemoryCatalogCache_Expires(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCatalogCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.SetListing(context.Background(), "k", sampleEntries(), time.Second))
	_, ok, _ := c.GetListing(context.Background(), "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = c.GetListing(context.Background(), "k")
	assert.False(t, ok)
}

func TestRedisCatalogCache(t *testing.T) {
	addr := os.Getenv("STOREFRONT_REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("STOREFRONT_REDIS_TEST_ADDR is not set")
	}

	client := NewRedisClient(addr)
	c := NewRedisCatalogCache(client, "storefront-test-"+uuid.NewString())
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Ping(context.Background()); err != nil {
		t.Skipf("redis is not reachable: %v", err)
	}
	exerciseCache(t, c)
}
