package cache

import (
	"context"
	"time"
)

// Store is a TTL'd key-value backend. Writes are insert-or-replace of a
// complete entry; an expired entry reads as a miss. Concurrent readers
// therefore see a whole entry or nothing, never a half-written one.
type Store interface {
	// Get unmarshals the entry for key into target, reporting whether a
	// live entry was found. A miss is not an error.
	Get(ctx context.Context, key string, target interface{}) (bool, error)

	// Set stores value under key with the given TTL, replacing any
	// previous entry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes the entry for key if present.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
