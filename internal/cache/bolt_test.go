package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltStoreRoundTrip(t *testing.T) {
	store := newTestBoltStore(t)
	ctx := context.Background()

	type payload struct {
		Username string `json:"username"`
		Commits  int    `json:"commits"`
	}

	require.NoError(t, store.Set(ctx, "k", payload{Username: "alice", Commits: 12}, time.Minute))

	var got payload
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Username: "alice", Commits: 12}, got)
}

func TestBoltStoreExpiry(t *testing.T) {
	store := newTestBoltStore(t)
	ctx := context.Background()

	now := time.Now()
	store.clock = func() time.Time { return now }
	require.NoError(t, store.Set(ctx, "k", "v", 30*time.Minute))

	var got string
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)

	store.clock = func() time.Time { return now.Add(31 * time.Minute) }
	found, err = store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)

	// The expired envelope is removed, not just hidden.
	store.clock = func() time.Time { return now }
	found, err = store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBoltStoreDelete(t *testing.T) {
	store := newTestBoltStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))

	var got string
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	store, err := NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "k", "survives", time.Hour))
	require.NoError(t, store.Close())

	reopened, err := NewBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	var got string
	found, err := reopened.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "survives", got)
}
