// Package resolver turns host names and service names into candidate
// endpoints, synchronously or with a completion delivered on a Service
// worker. Results can be cached in process or shared through Redis.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/cyberinferno/go-netengine/endpoint"
	"github.com/cyberinferno/go-netengine/logger"
	"github.com/cyberinferno/go-netengine/service"
)

// DefaultTTL is how long cached results are kept when Config.TTL is zero.
const DefaultTTL = 30 * time.Second

var (
	// ErrNotFound is returned when a name resolves to no address.
	ErrNotFound = errors.New("resolver: host not found")
	// ErrStopped is returned by ResolveAsync callbacks when the service stopped
	// before the completion could be delivered.
	ErrStopped = errors.New("resolver: service stopped")
)

// Config holds configuration for a Resolver.
type Config struct {
	// Cache stores results between calls; nil disables caching.
	Cache Cache
	// TTL is the lifetime of cached results.
	TTL time.Duration
	// Lookup performs the system lookups; nil means net.DefaultResolver.
	Lookup *net.Resolver
	// Timeout bounds asynchronous resolutions; zero means no bound.
	Timeout time.Duration
	// Logger receives debug entries for lookups; nil disables logging.
	Logger logger.Logger
}

// DefaultConfig returns a Config with an in-memory cache.
func DefaultConfig() Config {
	return Config{
		Cache:   NewMemoryCache(DefaultTTL, 2*DefaultTTL),
		TTL:     DefaultTTL,
		Timeout: 10 * time.Second,
	}
}

// Resolver resolves host and service names. It is safe for concurrent use.
type Resolver struct {
	svc    *service.Service
	cache  Cache
	ttl    time.Duration
	lookup *net.Resolver
	limit  time.Duration
	log    logger.Logger
}

// New creates a Resolver whose asynchronous completions run on svc.
//
// Parameters:
//   - svc: The Service delivering ResolveAsync completions
//   - cfg: Cache, TTL, lookup and logger settings
//
// Returns:
//   - A new *Resolver
func New(svc *service.Service, cfg Config) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	if cfg.Lookup == nil {
		cfg.Lookup = net.DefaultResolver
	}

	return &Resolver{
		svc:    svc,
		cache:  cfg.Cache,
		ttl:    cfg.TTL,
		lookup: cfg.Lookup,
		limit:  cfg.Timeout,
		log:    logger.OrNop(cfg.Logger).With(logger.Field{Key: "component", Value: "resolver"}),
	}
}

// Resolve blocks until host and svc are resolved.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - host: Host name or IP literal
//   - svc: Numeric port or service name such as "http"
//
// Returns:
//   - The candidate endpoints in system resolution order
//   - An error wrapping ErrNotFound, a lookup failure or a context error
func (r *Resolver) Resolve(ctx context.Context, host, svc string) (*Results, error) {
	port, err := r.port(ctx, svc)
	if err != nil {
		return nil, err
	}

	if host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrNotFound)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return newResults([]endpoint.Endpoint{endpoint.FromAddrPort(netip.AddrPortFrom(addr, uint16(port)))}), nil
	}

	lookup := func(ctx context.Context) ([]endpoint.Endpoint, error) {
		return r.resolveHost(ctx, host, port)
	}

	var eps []endpoint.Endpoint
	if r.cache != nil {
		eps, err = r.cache.GetOrLookup(ctx, cacheKey(host, port), r.ttl, lookup)
	} else {
		eps, err = lookup(ctx)
	}

	if err != nil {
		return nil, err
	}

	return newResults(eps), nil
}

// ResolveAsync resolves on a background goroutine and delivers the outcome to
// fn on a Service worker.
//
// Parameters:
//   - host: Host name or IP literal
//   - svc: Numeric port or service name
//   - fn: Completion receiving the results or an error
//
// Returns:
//   - false if the Service is not started and fn will not be called
func (r *Resolver) ResolveAsync(host, svc string, fn func(*Results, error)) bool {
	if !r.svc.IsStarted() {
		return false
	}

	go func() {
		ctx := context.Background()
		if r.limit > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.limit)
			defer cancel()
		}

		res, err := r.Resolve(ctx, host, svc)
		if !r.svc.Post(func() { fn(res, err) }) {
			r.log.Warn("resolve completion dropped", logger.Field{Key: "host", Value: host}, logger.Field{Key: "error", Value: ErrStopped})
		}
	}()

	return true
}

// Invalidate drops the cached result for host and svc so the next Resolve
// performs a fresh lookup.
//
// Parameters:
//   - host: Host name
//   - svc: Numeric port or service name
func (r *Resolver) Invalidate(host, svc string) {
	if r.cache == nil {
		return
	}

	ctx := context.Background()
	port, err := r.port(ctx, svc)
	if err != nil {
		return
	}

	if err := r.cache.Invalidate(ctx, cacheKey(host, port)); err != nil {
		r.log.Warn("cache invalidation failed", logger.Field{Key: "host", Value: host}, logger.Field{Key: "error", Value: err})
	}
}

func (r *Resolver) port(ctx context.Context, svc string) (int, error) {
	if n, err := strconv.Atoi(svc); err == nil {
		if n < 0 || n > 65535 {
			return 0, fmt.Errorf("%w: %d", endpoint.ErrInvalidPort, n)
		}

		return n, nil
	}

	n, err := r.lookup.LookupPort(ctx, "tcp", svc)
	if err != nil {
		return 0, fmt.Errorf("resolver: service %q: %w", svc, err)
	}

	return n, nil
}

func (r *Resolver) resolveHost(ctx context.Context, host string, port int) ([]endpoint.Endpoint, error) {
	addrs, err := r.lookup.LookupNetIP(ctx, "ip", host)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}

		return nil, fmt.Errorf("resolver: lookup %s: %w", host, err)
	}

	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, host)
	}

	eps := make([]endpoint.Endpoint, len(addrs))
	for i, a := range addrs {
		eps[i] = endpoint.FromAddrPort(netip.AddrPortFrom(a, uint16(port)))
	}

	r.log.Debug("resolved", logger.Field{Key: "host", Value: host}, logger.Field{Key: "count", Value: len(eps)})
	return eps, nil
}

// Results is a finite sequence of candidate endpoints consumed once, in
// resolution order. It is safe for concurrent use; each endpoint is handed
// out exactly once.
type Results struct {
	mu    sync.Mutex
	items []endpoint.Endpoint
	next  int
}

func newResults(eps []endpoint.Endpoint) *Results {
	return &Results{items: eps}
}

// NewResults wraps a fixed list of endpoints, mainly for tests and for
// callers that already know their candidates.
func NewResults(eps ...endpoint.Endpoint) *Results {
	return newResults(clone(eps))
}

// Next returns the next unconsumed endpoint.
//
// Returns:
//   - The endpoint and true, or the zero Endpoint and false when exhausted
func (r *Results) Next() (endpoint.Endpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.items) {
		return endpoint.Endpoint{}, false
	}

	ep := r.items[r.next]
	r.next++
	return ep, true
}

// All returns an iterator over the endpoints not yet consumed. Ranging over
// it consumes them; a second range yields only what the first left behind.
func (r *Results) All() iter.Seq[endpoint.Endpoint] {
	return func(yield func(endpoint.Endpoint) bool) {
		for {
			ep, ok := r.Next()
			if !ok || !yield(ep) {
				return
			}
		}
	}
}

// Len returns the total number of endpoints, consumed or not.
func (r *Results) Len() int {
	return len(r.items)
}
