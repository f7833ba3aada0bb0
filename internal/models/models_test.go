package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalContributionsRecomputed(t *testing.T) {
	s := &ContributionSummary{
		CommitCount:           7,
		ChangeRequestsByState: map[string]int{"opened": 2, "merged": 3, "closed": 1},
		IssuesByState:         map[string]int{"opened": 4, "closed": 2},
		IssueCommentCount:     9,
		ChangeRequestCommentCount: 5,
	}

	assert.Equal(t, 6, s.ChangeRequestCount())
	assert.Equal(t, 6, s.IssueCount())
	assert.Equal(t, 19, s.TotalContributions())
	// Comments stay out of the total.
	assert.Equal(t, 14, s.CommentCount())
}

func TestWindowContainsInclusiveBounds(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)
	w, err := NewWindow(start, end)
	require.NoError(t, err)

	tests := []struct {
		name     string
		ts       time.Time
		expected bool
	}{
		{"exactly at start", start, true},
		{"exactly at end", end, true},
		{"inside", time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC), true},
		{"one second before start", start.Add(-time.Second), false},
		{"one second after end", end.Add(time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, w.Contains(tt.ts))
		})
	}
}

func TestNewWindowRejectsInverted(t *testing.T) {
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	start := end.Add(time.Hour)
	_, err := NewWindow(start, end)
	assert.Error(t, err)
}

type stamped time.Time

func (s stamped) Timestamp() time.Time { return time.Time(s) }

// Filtering a superset after the fact must agree with a fetch that was
// narrowed to the window up front.
func TestFilterPrePostEquivalence(t *testing.T) {
	w, err := NewWindow(
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC),
	)
	require.NoError(t, err)

	var all []stamped
	for day := -10; day <= 40; day++ {
		all = append(all, stamped(w.Start.AddDate(0, 0, day)))
	}

	// Simulated fetch-boundary filter: only items the server would have
	// returned for the window.
	var fetched []stamped
	for _, item := range all {
		if w.Contains(item.Timestamp()) {
			fetched = append(fetched, item)
		}
	}

	assert.Equal(t, FilterInWindow(w, all), FilterInWindow(w, fetched))
	assert.Equal(t, CountInWindow(w, all), len(FilterInWindow(w, fetched)))
}

func TestBatchResultSucceededPreservesOrderAndExcludesFailures(t *testing.T) {
	ok := func(name string) Outcome {
		return Outcome{Username: name, Summary: &ContributionSummary{
			Identity: Identity{Username: name},
		}}
	}
	b := &BatchResult{
		Usernames: []string{"carol", "alice", "bob"},
		Outcomes: map[string]Outcome{
			"carol": ok("carol"),
			"alice": {Username: "alice", ErrKind: "USER_NOT_FOUND", Err: assertErr{}},
			"bob":   ok("bob"),
		},
	}

	cohort := b.Succeeded()
	require.Len(t, cohort, 2)
	assert.Equal(t, "carol", cohort[0].Identity.Username)
	assert.Equal(t, "bob", cohort[1].Identity.Username)
	assert.Equal(t, 1, b.FailedCount())
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
