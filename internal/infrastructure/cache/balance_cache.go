package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	appledger "github.com/giveflow/backend/internal/application/ledger"
)

// InMemoryBalanceCache caches ledger balance folds in process memory. The
// entry log stays the source of truth; a stale or missing value only costs a
// recompute.
type InMemoryBalanceCache struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
}

// NewInMemoryBalanceCache creates a new in-memory balance cache
func NewInMemoryBalanceCache() *InMemoryBalanceCache {
	return &InMemoryBalanceCache{balances: make(map[string]decimal.Decimal)}
}

// Get returns the cached balance and whether the key was present
func (c *InMemoryBalanceCache) Get(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	balance, ok := c.balances[key]
	if !ok {
		return decimal.Zero, false, nil
	}
	return balance, true, nil
}

// Set stores a balance
func (c *InMemoryBalanceCache) Set(ctx context.Context, key string, balance decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[key] = balance
	return nil
}

// Invalidate drops a key
func (c *InMemoryBalanceCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.balances, key)
	return nil
}

// RedisBalanceCache caches ledger balance folds in Redis so all instances see
// an invalidation at once
type RedisBalanceCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisBalanceCache creates a Redis-backed balance cache on an existing client
func NewRedisBalanceCache(client *redis.Client, ttl time.Duration) *RedisBalanceCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisBalanceCache{
		client:    client,
		keyPrefix: "ledger:",
		ttl:       ttl,
	}
}

// Get returns the cached balance and whether the key was present
func (c *RedisBalanceCache) Get(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	value, err := c.client.Get(ctx, c.keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("failed to read cached balance: %w", err)
	}
	balance, err := decimal.NewFromString(value)
	if err != nil {
		// unreadable value is as good as a miss
		return decimal.Zero, false, nil
	}
	return balance, true, nil
}

// Set stores a balance
func (c *RedisBalanceCache) Set(ctx context.Context, key string, balance decimal.Decimal) error {
	if err := c.client.Set(ctx, c.keyPrefix+key, balance.String(), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache balance: %w", err)
	}
	return nil
}

// Invalidate drops a key
func (c *RedisBalanceCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached balance: %w", err)
	}
	return nil
}

// Ensure both caches implement BalanceCache
var (
	_ appledger.BalanceCache = (*InMemoryBalanceCache)(nil)
	_ appledger.BalanceCache = (*RedisBalanceCache)(nil)
)
