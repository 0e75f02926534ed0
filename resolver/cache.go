package resolver

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/cyberinferno/go-netengine/endpoint"
)

// LookupFunc performs the actual name resolution when a Cache misses.
type LookupFunc func(ctx context.Context) ([]endpoint.Endpoint, error)

// Cache stores resolution results keyed by host and port. Implementations
// must be safe for concurrent use and should collapse concurrent misses for
// the same key into a single lookup.
type Cache interface {
	// GetOrLookup returns the cached endpoints for key, or runs lookup, stores
	// its result for ttl and returns it.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key
	//   - ttl: Time-to-live for a stored result
	//   - lookup: Function resolving the key on a miss
	//
	// Returns:
	//   - The endpoints in resolution order
	//   - An error if the lookup or the cache backend fails
	GetOrLookup(ctx context.Context, key string, ttl time.Duration, lookup LookupFunc) ([]endpoint.Endpoint, error)

	// Invalidate drops key from the cache.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key
	//
	// Returns:
	//   - An error if the cache backend fails
	Invalidate(ctx context.Context, key string) error

	// Len returns the number of cached entries.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//
	// Returns:
	//   - The entry count
	//   - An error if the cache backend fails
	Len(ctx context.Context) (int, error)
}

const keyPrefix = "netengine:resolve:"

func cacheKey(host string, port int) string {
	return keyPrefix + net.JoinHostPort(host, strconv.Itoa(port))
}
