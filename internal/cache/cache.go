package cache

import (
	"context"
	"sync"
	"time"

	"persediaan/backend/internal/domain"
)

// RestockCache stores computed restock suggestions. Entries are dropped
// whenever stock moves, so a hit is never older than the last movement.
type RestockCache interface {
	Get(ctx context.Context, key string) (*domain.RestockSuggestionResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.RestockSuggestionResponse, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopRestockCache struct{}

func (NoopRestockCache) Get(_ context.Context, _ string) (*domain.RestockSuggestionResponse, bool, error) {
	return nil, false, nil
}

func (NoopRestockCache) Set(_ context.Context, _ string, _ *domain.RestockSuggestionResponse, _ time.Duration) error {
	return nil
}

func (NoopRestockCache) Delete(_ context.Context, _ string) error {
	return nil
}

// MemoryRestockCache is an in-process cache used when Redis is not
// configured.
type MemoryRestockCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     domain.RestockSuggestionResponse
	expiresAt time.Time
}

func NewMemoryRestockCache() *MemoryRestockCache {
	return &MemoryRestockCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryRestockCache) Get(_ context.Context, key string) (*domain.RestockSuggestionResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	value := entry.value
	value.Suggestions = append([]domain.RestockSuggestion(nil), entry.value.Suggestions...)
	return &value, true, nil
}

func (c *MemoryRestockCache) Set(_ context.Context, key string, value *domain.RestockSuggestionResponse, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *value
	stored.Suggestions = append([]domain.RestockSuggestion(nil), value.Suggestions...)
	c.entries[key] = memoryEntry{value: stored, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryRestockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}
