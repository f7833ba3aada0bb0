package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitcohort/gitcohort-go/internal/models"
)

func testWindow(t *testing.T, from, to string) models.Window {
	t.Helper()
	start, err := time.Parse("2006-01-02", from)
	require.NoError(t, err)
	end, err := time.Parse("2006-01-02", to)
	require.NoError(t, err)
	return models.Window{Start: start, End: end}
}

func TestBatchKeyOrderInsensitive(t *testing.T) {
	w := testWindow(t, "2024-01-01", "2024-06-30")

	a := BatchKey([]string{"alice", "bob", "carol"}, w)
	b := BatchKey([]string{"carol", "alice", "bob"}, w)
	assert.Equal(t, a, b)
}

func TestBatchKeyNormalizesCaseAndSpace(t *testing.T) {
	w := testWindow(t, "2024-01-01", "2024-06-30")

	a := BatchKey([]string{"Alice", " bob "}, w)
	b := BatchKey([]string{"alice", "bob"}, w)
	assert.Equal(t, a, b)
}

func TestBatchKeyDistinguishesWindowAndCohort(t *testing.T) {
	w1 := testWindow(t, "2024-01-01", "2024-06-30")
	w2 := testWindow(t, "2024-01-01", "2024-07-31")

	base := BatchKey([]string{"alice", "bob"}, w1)
	assert.NotEqual(t, base, BatchKey([]string{"alice", "bob"}, w2))
	assert.NotEqual(t, base, BatchKey([]string{"alice"}, w1))
	assert.NotEqual(t, base, BatchKey([]string{"alice", "dave"}, w1))
}

func TestResourceKeyIncludesWindow(t *testing.T) {
	w1 := testWindow(t, "2024-01-01", "2024-06-30")
	w2 := testWindow(t, "2024-01-01", "2024-07-31")

	k1 := ResourceKey(KindSummary, "42:7", w1)
	k2 := ResourceKey(KindSummary, "42:7", w2)
	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k1, ResourceKey(KindProjects, "42:7", w1))
}

func TestIdentityKeyCaseInsensitive(t *testing.T) {
	assert.Equal(t, IdentityKey("Alice"), IdentityKey("alice"))
	assert.NotEqual(t, IdentityKey("alice"), IdentityKey("bob"))
}
