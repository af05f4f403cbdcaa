package inventory

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// StockCache memoizes available quantities for read-heavy callers. Writers
// invalidate the entry before returning so a caller never reads its own
// write as stale.
type StockCache interface {
	Get(ctx context.Context, sku SkuRef) (int, bool, error)
	Set(ctx context.Context, sku SkuRef, available int) error
	Invalidate(ctx context.Context, sku SkuRef) error
}

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	StockCacheKey(sku string) string
}

// RedisStockCache stores available quantities under mk:inventory:stock:<sku>.
type RedisStockCache struct {
	store redisStore
	ttl   time.Duration
}

func NewRedisStockCache(store redisStore, ttl time.Duration) (*RedisStockCache, error) {
	if store == nil {
		return nil, errors.New("redis store required")
	}
	if ttl <= 0 {
		return nil, errors.New("stock cache ttl must be positive")
	}
	return &RedisStockCache{store: store, ttl: ttl}, nil
}

func (c *RedisStockCache) Get(ctx context.Context, sku SkuRef) (int, bool, error) {
	raw, err := c.store.Get(ctx, c.store.StockCacheKey(sku.String()))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	available, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, err
	}
	return available, true, nil
}

func (c *RedisStockCache) Set(ctx context.Context, sku SkuRef, available int) error {
	return c.store.Set(ctx, c.store.StockCacheKey(sku.String()), strconv.Itoa(available), c.ttl)
}

func (c *RedisStockCache) Invalidate(ctx context.Context, sku SkuRef) error {
	return c.store.Del(ctx, c.store.StockCacheKey(sku.String()))
}
