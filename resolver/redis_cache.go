package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyberinferno/go-netengine/endpoint"
)

const (
	redisLockTTL     = 10 * time.Second
	redisWaitTimeout = 10 * time.Second
	redisMinBackoff  = 10 * time.Millisecond
	redisMaxBackoff  = 250 * time.Millisecond
)

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// RedisCache is a Cache shared between processes through Redis. Entries are
// stored as JSON arrays of "address:port" strings. A SETNX lock per key lets
// one process perform the lookup while the others poll for its result.
type RedisCache struct {
	client  redis.UniversalClient
	lockTTL time.Duration
}

// NewRedisCache creates a Redis-backed resolution cache.
//
// Parameters:
//   - client: A connected go-redis client
//
// Returns:
//   - A new *RedisCache
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client, lockTTL: redisLockTTL}
}

// GetOrLookup implements Cache.
func (c *RedisCache) GetOrLookup(ctx context.Context, key string, ttl time.Duration, lookup LookupFunc) ([]endpoint.Endpoint, error) {
	eps, err := c.get(ctx, key)
	if err == nil {
		return eps, nil
	}

	if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	lockKey := key + ":lock"
	owner := strconv.FormatInt(time.Now().UnixNano(), 10)
	acquired, err := c.client.SetNX(ctx, lockKey, owner, c.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("resolver: redis lock %s: %w", key, err)
	}

	if !acquired {
		return c.wait(ctx, key, lockKey)
	}

	defer c.client.Eval(context.Background(), unlockScript, []string{lockKey}, owner)

	eps, err = lookup(ctx)
	if err != nil {
		return nil, err
	}

	data, err := encodeEndpoints(eps)
	if err != nil {
		return nil, err
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return nil, fmt.Errorf("resolver: redis set %s: %w", key, err)
	}

	return eps, nil
}

// Invalidate implements Cache.
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("resolver: redis del %s: %w", key, err)
	}

	return nil
}

// Len implements Cache. It counts the resolution keys with SCAN.
func (c *RedisCache) Len(ctx context.Context) (int, error) {
	n := 0
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if !isLockKey(iter.Val()) {
			n++
		}
	}

	if err := iter.Err(); err != nil {
		return n, fmt.Errorf("resolver: redis scan: %w", err)
	}

	return n, nil
}

func (c *RedisCache) get(ctx context.Context, key string) ([]endpoint.Endpoint, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}

		return nil, fmt.Errorf("resolver: redis get %s: %w", key, err)
	}

	return decodeEndpoints([]byte(val))
}

// wait polls with exponential backoff until the lock holder stores a result,
// the lock disappears or the wait times out.
func (c *RedisCache) wait(ctx context.Context, key, lockKey string) ([]endpoint.Endpoint, error) {
	backoff := redisMinBackoff
	deadline := time.Now().Add(redisWaitTimeout)

	for time.Now().Before(deadline) {
		eps, err := c.get(ctx, key)
		if err == nil {
			return eps, nil
		}

		if !errors.Is(err, redis.Nil) {
			return nil, err
		}

		exists, err := c.client.Exists(ctx, lockKey).Result()
		if err != nil {
			return nil, fmt.Errorf("resolver: redis exists %s: %w", lockKey, err)
		}

		if exists == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, redisMaxBackoff)
	}

	return nil, fmt.Errorf("resolver: timeout waiting for %s", key)
}

func encodeEndpoints(eps []endpoint.Endpoint) ([]byte, error) {
	out := make([]string, len(eps))
	for i, ep := range eps {
		out[i] = ep.String()
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("resolver: encode endpoints: %w", err)
	}

	return data, nil
}

func decodeEndpoints(data []byte) ([]endpoint.Endpoint, error) {
	var in []string
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("resolver: decode endpoints: %w", err)
	}

	eps := make([]endpoint.Endpoint, 0, len(in))
	for _, s := range in {
		ep, err := endpoint.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("resolver: decode endpoints: %w", err)
		}

		eps = append(eps, ep)
	}

	return eps, nil
}

func isLockKey(key string) bool {
	return strings.HasSuffix(key, ":lock")
}
