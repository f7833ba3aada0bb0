package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache wraps a Store with single-flight coalescing: concurrent misses
// on the same key share one upstream fetch instead of thundering the
// API. This is the one synchronization primitive the batch fan-out
// needs beyond its worker bound.
type Cache struct {
	store  Store
	group  singleflight.Group
	logger *slog.Logger

	userTTL  time.Duration
	batchTTL time.Duration
}

// Options carries the two TTL tiers.
type Options struct {
	UserTTL  time.Duration // per-resource tier, default 30m
	BatchTTL time.Duration // assembled-batch tier, default 60m
}

// New builds a cache over the given store.
func New(store Store, opts Options) *Cache {
	if opts.UserTTL <= 0 {
		opts.UserTTL = 30 * time.Minute
	}
	if opts.BatchTTL <= 0 {
		opts.BatchTTL = 60 * time.Minute
	}
	return &Cache{
		store:    store,
		logger:   slog.Default().With("component", "cache"),
		userTTL:  opts.UserTTL,
		batchTTL: opts.BatchTTL,
	}
}

// UserTTL exposes the per-resource tier TTL.
func (c *Cache) UserTTL() time.Duration { return c.userTTL }

// BatchTTL exposes the batch tier TTL.
func (c *Cache) BatchTTL() time.Duration { return c.batchTTL }

// GetOrFetch returns the live cached value for key, or runs fetch once
// (even under concurrent misses) and stores its result with ttl. The
// result is unmarshaled into target.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, target interface{}, fetch func(ctx context.Context) (interface{}, error)) error {
	found, err := c.store.Get(ctx, key, target)
	if err != nil {
		// A broken cache read degrades to a fetch, it must not fail the
		// lookup.
		c.logger.Warn("cache read failed, fetching upstream", "key", key, "error", err)
	} else if found {
		return nil
	}

	// singleflight deduplicates concurrent fetches per key. All waiters
	// share the winner's marshaled result.
	raw, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Re-check after winning the flight: another flight may have
		// populated the key between our miss and now.
		var probe json.RawMessage
		if found, err := c.store.Get(ctx, key, &probe); err == nil && found {
			return []byte(probe), nil
		}

		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal fetched value for key %s: %w", key, err)
		}
		if err := c.store.Set(ctx, key, value, ttl); err != nil {
			c.logger.Warn("cache write failed", "key", key, "error", err)
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if shared {
		c.logger.Debug("coalesced concurrent fetch", "key", key)
	}

	return json.Unmarshal(raw.([]byte), target)
}

// Lookup reads a live entry without triggering a fetch on miss. The
// batch tier uses it so a cancelled or aborted run can decide for itself
// whether the assembled result is worth storing.
func (c *Cache) Lookup(ctx context.Context, key string, target interface{}) (bool, error) {
	return c.store.Get(ctx, key, target)
}

// Store writes an entry directly with the given TTL.
func (c *Cache) Store(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.store.Set(ctx, key, value, ttl)
}

// Invalidate drops the entry for key.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}
