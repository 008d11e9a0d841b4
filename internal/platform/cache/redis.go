package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is the part of *redis.Client the cache uses.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// JSONCache stores JSON values under prefixed keys with a fixed TTL.
type JSONCache struct {
	kv     KV
	prefix string
	ttl    time.Duration
}

func NewJSONCache(kv KV, prefix string, ttl time.Duration) *JSONCache {
	return &JSONCache{kv: kv, prefix: prefix, ttl: ttl}
}

func (c *JSONCache) key(k string) string {
	return c.prefix + k
}

// Get decodes the value at k into v. ok is false on a miss.
func (c *JSONCache) Get(ctx context.Context, k string, v interface{}) (ok bool, err error) {
	raw, err := c.kv.Get(ctx, c.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", k, err)
	}
	return true, nil
}

func (c *JSONCache) Set(ctx context.Context, k string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", k, err)
	}
	return c.kv.Set(ctx, c.key(k), raw, c.ttl).Err()
}

func (c *JSONCache) Delete(ctx context.Context, k string) error {
	return c.kv.Del(ctx, c.key(k)).Err()
}
