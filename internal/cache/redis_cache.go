package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	redis "github.com/redis/go-redis/v9"

	"refillpos/internal/cart"
)

const maxTTLJitter = 5 * time.Minute

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisCartCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCartCache stores snapshots for ttl plus up to five minutes of jitter
// so idle terminals do not all expire together.
func NewRedisCartCache(client *redis.Client, ttl time.Duration) *RedisCartCache {
	return &RedisCartCache{client: client, ttl: ttl}
}

func (c *RedisCartCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCartCache) Get(ctx context.Context, terminalID string) (*cart.Snapshot, bool, error) {
	val, err := c.client.Get(ctx, cartKey(terminalID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var snap cart.Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, false, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &snap, true, nil
}

// Set drops the key instead of storing an empty cart.
func (c *RedisCartCache) Set(ctx context.Context, terminalID string, snapshot cart.Snapshot) error {
	if len(snapshot.Lines) == 0 && snapshot.Customer == nil {
		return c.Delete(ctx, terminalID)
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := c.client.Set(ctx, cartKey(terminalID), payload, c.ttlWithJitter()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisCartCache) Delete(ctx context.Context, terminalID string) error {
	if err := c.client.Del(ctx, cartKey(terminalID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *RedisCartCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	return c.ttl + rand.N(maxTTLJitter)
}

func cartKey(terminalID string) string {
	return fmt.Sprintf("pos:cart:%s", terminalID)
}
