package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	failGet error
	failDel error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return "", f.failGet
	}
	v, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDel != nil {
		return f.failDel
	}
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func (f *fakeRedis) StockCacheKey(sku string) string {
	return "mk:inventory:stock:" + sku
}

func TestRedisStockCacheRoundTrip(t *testing.T) {
	store := newFakeRedis()
	cache, err := NewRedisStockCache(store, 2*time.Second)
	require.NoError(t, err)
	ctx := context.Background()
	sku := ProductSku(uuid.New())

	_, ok, err := cache.Get(ctx, sku)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, sku, 12))
	assert.Equal(t, 2*time.Second, store.ttls["mk:inventory:stock:"+sku.String()])

	got, ok, err := cache.Get(ctx, sku)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 12, got)

	require.NoError(t, cache.Invalidate(ctx, sku))
	_, ok, err = cache.Get(ctx, sku)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStockCacheErrors(t *testing.T) {
	_, err := NewRedisStockCache(nil, time.Second)
	require.Error(t, err)
	_, err = NewRedisStockCache(newFakeRedis(), 0)
	require.Error(t, err)

	store := newFakeRedis()
	cache, err := NewRedisStockCache(store, time.Second)
	require.NoError(t, err)
	sku := VariantSku(uuid.New())

	store.values[store.StockCacheKey(sku.String())] = "garbage"
	_, _, err = cache.Get(context.Background(), sku)
	require.Error(t, err)

	store.failGet = errors.New("connection reset")
	_, _, err = cache.Get(context.Background(), sku)
	require.Error(t, err)
}
