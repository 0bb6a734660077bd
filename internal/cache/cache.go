// Package cache provides a time-boxed, explicitly invalidated cache for
// collection snapshots read from the remote store.
//
// The cache is advisory: within a key's TTL repeated reads return the last
// snapshot, and nothing else about correctness depends on it.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/cantina/internal/metrics"
)

// Cache stores one value per key along with the time it was produced.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type entry struct {
	value       any
	populatedAt time.Time
}

// fresh reports whether the entry is younger than ttl at now.
func (e entry) fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.populatedAt) < ttl
}

// Option is a functional option for configuring the cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithMetrics reports hits and misses to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithLogger sets the logger for the cache.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// lookup returns the cached value for key if it is younger than ttl.
func (c *Cache) lookup(key string, ttl time.Duration) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.fresh(c.now(), ttl) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) store(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, populatedAt: c.now()}
}

// Invalidate drops the given keys, or every key when none are given.
func (c *Cache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(keys) == 0 {
		clear(c.entries)
		c.logger.Debug("Cache cleared")
		return
	}
	for _, key := range keys {
		delete(c.entries, key)
	}
	c.logger.Debug("Cache keys invalidated", "keys", keys)
}

// Len returns the number of entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrFetch returns the value cached under key if it was produced less than
// ttl ago. Otherwise it calls producer, caches a successful result and
// returns it; errors are returned as-is and never cached. A ttl <= 0 bypasses
// the cache entirely.
//
// The producer runs without holding the cache lock, so two concurrent misses
// on the same key may both call it; the later result wins.
func GetOrFetch[V any](ctx context.Context, c *Cache, key string, ttl time.Duration, producer func(context.Context) (V, error)) (V, error) {
	if ttl <= 0 {
		return producer(ctx)
	}

	if cached, ok := c.lookup(key, ttl); ok {
		v, ok := cached.(V)
		if !ok {
			var zero V
			return zero, fmt.Errorf("cache key %q holds %T, not the requested type", key, cached)
		}
		c.metrics.CacheHit(key)
		c.logger.Debug("Cache hit", "key", key)
		return v, nil
	}

	c.metrics.CacheMiss(key)
	c.logger.Debug("Cache miss", "key", key)

	v, err := producer(ctx)
	if err != nil {
		return v, err
	}
	c.store(key, v)
	return v, nil
}
