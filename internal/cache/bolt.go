package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const boltBucket = "entries"

// BoltStore persists the cache to a local file so a warm cache survives
// process restarts. TTL is enforced on read: an expired envelope reads
// as a miss and is lazily deleted.
type BoltStore struct {
	db    *bolt.DB
	clock func() time.Time
}

type boltEnvelope struct {
	ExpiresAt time.Time       `json:"expires_at"`
	Value     json.RawMessage `json:"value"`
}

// NewBoltStore opens (or creates) the cache file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt cache path is required")
	}
	cleaned := filepath.Clean(path)
	if dir := filepath.Dir(cleaned); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := bolt.Open(cleaned, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt cache %s: %w", cleaned, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db, clock: time.Now}, nil
}

func (s *BoltStore) Get(ctx context.Context, key string, target interface{}) (bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if v := tx.Bucket([]byte(boltBucket)).Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}

	var env boltEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, fmt.Errorf("decode cache envelope for key %s: %w", key, err)
	}
	if s.clock().After(env.ExpiresAt) {
		_ = s.Delete(ctx, key)
		return false, nil
	}
	if err := json.Unmarshal(env.Value, target); err != nil {
		return false, fmt.Errorf("unmarshal cached value for key %s: %w", key, err)
	}
	return true, nil
}

func (s *BoltStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	inner, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for key %s: %w", key, err)
	}
	raw, err := json.Marshal(boltEnvelope{
		ExpiresAt: s.clock().Add(ttl),
		Value:     inner,
	})
	if err != nil {
		return fmt.Errorf("marshal cache envelope for key %s: %w", key, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return tx.Bucket([]byte(boltBucket)).Put([]byte(key), raw)
	})
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return tx.Bucket([]byte(boltBucket)).Delete([]byte(key))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
