package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persediaan/backend/internal/config"
	"persediaan/backend/internal/domain"
)

func sampleResponse() *domain.RestockSuggestionResponse {
	return &domain.RestockSuggestionResponse{
		GeneratedAt: time.Date(2026, time.October, 1, 8, 0, 0, 0, time.UTC),
		WindowDays:  30,
		Suggestions: []domain.RestockSuggestion{
			{Item: domain.ItemRef{ID: "brg-001", Code: "ATK-001"}, Stock: 2, MinStock: 20, SuggestedQty: 38},
		},
	}
}

func TestMemoryRestockCacheExpiresAndDeletes(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.October, 1, 8, 0, 0, 0, time.UTC)
	c := NewMemoryRestockCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", sampleResponse(), time.Minute))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 38, got.Suggestions[0].SuggestedQty)

	got.Suggestions[0].SuggestedQty = 0
	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, 38, again.Suggestions[0].SuggestedQty)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", sampleResponse(), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisRestockCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("PERSEDIAAN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set PERSEDIAAN_TEST_REDIS_ADDR to run redis integration test")
	}
	ctx := context.Background()
	c := NewRedisRestockCache(config.RedisConfig{Addr: addr})
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	key := "persediaan:test:" + time.Now().Format("150405.000000")
	require.NoError(t, c.Set(ctx, key, sampleResponse(), time.Minute))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ATK-001", got.Suggestions[0].Item.Code)

	require.NoError(t, c.Delete(ctx, key))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
