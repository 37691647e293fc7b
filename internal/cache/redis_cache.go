package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"persediaan/backend/internal/config"
	"persediaan/backend/internal/domain"
)

type RedisRestockCache struct {
	client *redis.Client
}

func NewRedisRestockCache(cfg config.RedisConfig) *RedisRestockCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisRestockCache{client: client}
}

func (c *RedisRestockCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisRestockCache) Close() error {
	return c.client.Close()
}

func (c *RedisRestockCache) Get(ctx context.Context, key string) (*domain.RestockSuggestionResponse, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var resp domain.RestockSuggestionResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

func (c *RedisRestockCache) Set(ctx context.Context, key string, value *domain.RestockSuggestionResponse, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisRestockCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
