package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tair/heat-service/pkg/logger"
)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Logger.Info().
		Str("addr", addr).
		Int("db", db).
		Msg("Connected to Redis")
	return client, nil
}

// JSONCache stores JSON encoded values under a key prefix with a fixed TTL
type JSONCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewJSONCache creates a new JSON cache
func NewJSONCache(client *redis.Client, prefix string, ttl time.Duration) *JSONCache {
	return &JSONCache{client: client, prefix: prefix, ttl: ttl}
}

// Get decodes the cached value for key into dst. A miss returns false and no error.
func (c *JSONCache) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode cached value: %w", err)
	}
	return true, nil
}

// Set encodes v and stores it under key
func (c *JSONCache) Set(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err()
}

// Invalidate deletes every key under the cache prefix
func (c *JSONCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return err
	}

	logger.Logger.Info().
		Int("count", len(keys)).
		Str("prefix", c.prefix).
		Msg("Cache invalidated")
	return nil
}
