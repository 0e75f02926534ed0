package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/cyberinferno/go-netengine/endpoint"
)

// MemoryCache is an in-process Cache backed by go-cache. Concurrent misses for
// the same key share one lookup through a singleflight group.
type MemoryCache struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewMemoryCache creates an in-memory resolution cache.
//
// Parameters:
//   - defaultTTL: TTL used when GetOrLookup is given a zero ttl
//   - cleanupInterval: Interval at which expired entries are purged
//
// Returns:
//   - A new *MemoryCache
func NewMemoryCache(defaultTTL, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{cache: cache.New(defaultTTL, cleanupInterval)}
}

// GetOrLookup implements Cache. Failed lookups are not cached.
func (c *MemoryCache) GetOrLookup(ctx context.Context, key string, ttl time.Duration, lookup LookupFunc) ([]endpoint.Endpoint, error) {
	if eps, ok := c.get(key); ok {
		return eps, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		if eps, ok := c.get(key); ok {
			return eps, nil
		}

		eps, err := lookup(ctx)
		if err != nil {
			return nil, err
		}

		if ttl <= 0 {
			ttl = cache.DefaultExpiration
		}

		c.cache.Set(key, eps, ttl)
		return eps, nil
	})
	if err != nil {
		return nil, err
	}

	eps, ok := val.([]endpoint.Endpoint)
	if !ok {
		return nil, fmt.Errorf("resolver: unexpected cache value for %s", key)
	}

	return clone(eps), nil
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.cache.Delete(key)
	return nil
}

// Len implements Cache.
func (c *MemoryCache) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return c.cache.ItemCount(), nil
}

func (c *MemoryCache) get(key string) ([]endpoint.Endpoint, bool) {
	val, found := c.cache.Get(key)
	if !found {
		return nil, false
	}

	eps, ok := val.([]endpoint.Endpoint)
	if !ok {
		return nil, false
	}

	return clone(eps), true
}

func clone(eps []endpoint.Endpoint) []endpoint.Endpoint {
	return append([]endpoint.Endpoint(nil), eps...)
}
