// Package cachemanager is a typed wrapper over an in-memory expiring cache.
package cachemanager

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	DefaultExpiration      = 30 * time.Second
	DefaultCleanupInterval = 5 * time.Minute
)

type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	GetOrLoad(ctx context.Context, key K, load func(context.Context) (V, error)) (V, error)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K)
	Flush(ctx context.Context)
	Len() int
}

// InMemory implements CacheManager on go-cache.
type InMemory[K ~string, V any] struct {
	useCase string
	ttl     time.Duration
	cache   *gocache.Cache
	log     *zap.Logger
}

var _ CacheManager[string, int] = (*InMemory[string, int])(nil)

// NewInMemory returns a cache whose entries expire after ttl. A zero ttl uses DefaultExpiration.
func NewInMemory[K ~string, V any](useCase string, ttl time.Duration, log *zap.Logger) *InMemory[K, V] {
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &InMemory[K, V]{
		useCase: useCase,
		ttl:     ttl,
		cache:   gocache.New(ttl, DefaultCleanupInterval),
		log:     log.With(zap.String("cache", useCase)),
	}
}

func (c *InMemory[K, V]) Get(ctx context.Context, key K) (V, bool) {
	var zero V
	value, found := c.cache.Get(string(key))
	if !found {
		return zero, false
	}
	v, ok := value.(V)
	if !ok {
		c.log.Error("wrong type in cache", zap.String("key", string(key)))
		return zero, false
	}
	c.log.Debug("cache hit", zap.String("key", string(key)))
	return v, true
}

// GetOrLoad returns the cached value or stores the result of load. Errors are not cached.
func (c *InMemory[K, V]) GetOrLoad(ctx context.Context, key K, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	c.Set(ctx, key, v, c.ttl)
	return v, nil
}

func (c *InMemory[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	c.cache.Set(string(key), value, ttl)
}

func (c *InMemory[K, V]) Delete(ctx context.Context, keys ...K) {
	for _, k := range keys {
		c.cache.Delete(string(k))
	}
}

func (c *InMemory[K, V]) Flush(ctx context.Context) {
	c.cache.Flush()
}

func (c *InMemory[K, V]) Len() int {
	return c.cache.ItemCount()
}
