package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrFetchCachesWithinTTL(t *testing.T) {
	c := New(NewMemoryStore(), Options{})
	ctx := context.Background()

	var calls atomic.Int32
	fetch := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		return "value", nil
	}

	var got string
	require.NoError(t, c.GetOrFetch(ctx, "k", time.Minute, &got, fetch))
	assert.Equal(t, "value", got)

	got = ""
	require.NoError(t, c.GetOrFetch(ctx, "k", time.Minute, &got, fetch))
	assert.Equal(t, "value", got)

	// Two lookups within TTL, at most one upstream call.
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrFetchRefetchesAfterExpiry(t *testing.T) {
	c := New(NewMemoryStore(), Options{})
	ctx := context.Background()

	var calls atomic.Int32
	fetch := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		return int(calls.Load()), nil
	}

	var got int
	require.NoError(t, c.GetOrFetch(ctx, "k", 20*time.Millisecond, &got, fetch))
	assert.Equal(t, 1, got)

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, c.GetOrFetch(ctx, "k", 20*time.Millisecond, &got, fetch))
	// Expiry produced a new entry via exactly one new upstream call.
	assert.Equal(t, 2, got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrFetchSingleFlight(t *testing.T) {
	c := New(NewMemoryStore(), Options{})
	ctx := context.Background()

	var calls atomic.Int32
	fetch := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		time.Sleep(30 * time.Millisecond)
		return "shared", nil
	}

	const waiters = 16
	var wg sync.WaitGroup
	results := make([]string, waiters)
	for i := 0; i < waiters; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got string
			if err := c.GetOrFetch(ctx, "hot-key", time.Minute, &got, fetch); err == nil {
				results[i] = got
			}
		}()
	}
	wg.Wait()

	// N concurrent misses for one key coalesce into one upstream call.
	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
}

func TestGetOrFetchDistinctKeysDoNotCoalesce(t *testing.T) {
	c := New(NewMemoryStore(), Options{})
	ctx := context.Background()

	var calls atomic.Int32
	fetch := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		return "v", nil
	}

	var got string
	require.NoError(t, c.GetOrFetch(ctx, "a", time.Minute, &got, fetch))
	require.NoError(t, c.GetOrFetch(ctx, "b", time.Minute, &got, fetch))
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrFetchErrorNotCached(t *testing.T) {
	c := New(NewMemoryStore(), Options{})
	ctx := context.Background()

	var calls atomic.Int32
	failing := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		return nil, assert.AnError
	}

	var got string
	assert.Error(t, c.GetOrFetch(ctx, "k", time.Minute, &got, failing))
	assert.Error(t, c.GetOrFetch(ctx, "k", time.Minute, &got, failing))
	// Failures are retried on the next lookup, never stored.
	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, store.Set(ctx, "k", payload{Name: "alice", Count: 3}, time.Minute))

	var got payload
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Name: "alice", Count: 3}, got)

	require.NoError(t, store.Delete(ctx, "k"))
	found, err = store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOptionsDefaults(t *testing.T) {
	c := New(NewMemoryStore(), Options{})
	assert.Equal(t, 30*time.Minute, c.UserTTL())
	assert.Equal(t, 60*time.Minute, c.BatchTTL())
}
