package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID int `json:"id"`
}

// servePages serves n pages of one item each, with X-Next-Page set on
// every page but the last.
func servePages(n int, calls *atomic.Int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < n {
			w.Header().Set("X-Next-Page", strconv.Itoa(page+1))
		}
		fmt.Fprintf(w, `[{"id":%d}]`, page)
	})
}

func TestPagerFollowsContinuation(t *testing.T) {
	var calls atomic.Int32
	transport, _ := newTestTransport(t, servePages(3, &calls))

	pager := transport.NewPager("/projects/1/issues", nil)
	items, err := collectAll[item](context.Background(), pager)
	require.NoError(t, err)

	assert.Equal(t, []item{{1}, {2}, {3}}, items)
	assert.Equal(t, int32(3), calls.Load())
	assert.False(t, pager.Truncated())
}

func TestPagerStopsOnEmptyContinuation(t *testing.T) {
	var calls atomic.Int32
	transport, _ := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[{"id":1}]`))
	}))

	pager := transport.NewPager("/projects/1/issues", nil)
	items, err := collectAll[item](context.Background(), pager)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPagerStopsOnEmptyBodyDespiteContinuation(t *testing.T) {
	var calls atomic.Int32
	transport, _ := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// A misbehaving server that always promises another page.
		w.Header().Set("X-Next-Page", "2")
		w.Write([]byte(`[]`))
	}))

	pager := transport.NewPager("/projects/1/issues", nil)

	// A direct consumer sees the empty page once, then exhaustion.
	body, ok, err := pager.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[]`, string(body))

	_, ok, err = pager.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPagerEarlyExitStopsFetching(t *testing.T) {
	var calls atomic.Int32
	transport, _ := newTestTransport(t, servePages(100, &calls))

	pager := transport.NewPager("/projects/1/repository/commits", nil)
	err := eachPage(context.Background(), pager, func(items []item) error {
		// A consumer that has what it needs stops the lazy sequence.
		return errStopPaging
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPagerCapTruncatesNotFails(t *testing.T) {
	var calls atomic.Int32
	transport, _ := newTestTransport(t, servePages(1000, &calls))

	pager := transport.NewPager("/projects/1/issues", nil).WithMaxPages(4)
	items, err := collectAll[item](context.Background(), pager)

	// Hitting the cap keeps what was retrieved and flags truncation.
	require.NoError(t, err)
	assert.Len(t, items, 4)
	assert.Equal(t, int32(4), calls.Load())
	assert.True(t, pager.Truncated())
}

func TestPagerPropagatesTransportError(t *testing.T) {
	transport, _ := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	pager := transport.NewPager("/projects/1/issues", nil)
	_, err := collectAll[item](context.Background(), pager)
	assert.Error(t, err)
}
