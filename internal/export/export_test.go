package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitcohort/gitcohort-go/internal/grading"
	"github.com/gitcohort/gitcohort-go/internal/models"
)

func TestReadRosterSkipsHeaderAndDedupes(t *testing.T) {
	input := strings.Join([]string{
		"username,display_name",
		"alice,Alice Smith",
		"bob",
		"ALICE,Duplicate Alice",
		"",
		"  carol  ,Carol Jones",
	}, "\n")

	entries, err := ReadRoster(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, models.RosterEntry{Username: "alice", DisplayName: "Alice Smith"}, entries[0])
	assert.Equal(t, models.RosterEntry{Username: "bob"}, entries[1])
	assert.Equal(t, models.RosterEntry{Username: "carol", DisplayName: "Carol Jones"}, entries[2])
}

func TestReadRosterWithoutHeader(t *testing.T) {
	entries, err := ReadRoster(strings.NewReader("alice\nbob\n"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].Username)
}

func TestReadRosterEmpty(t *testing.T) {
	_, err := ReadRoster(strings.NewReader("username,display_name\n"))
	require.Error(t, err)
}

func TestParseUsernameList(t *testing.T) {
	entries := ParseUsernameList("alice, bob,,ALICE ,carol")
	require.Len(t, entries, 3)
	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, "bob", entries[1].Username)
	assert.Equal(t, "carol", entries[2].Username)
}

func summaryFor(username string, commits int) *models.ContributionSummary {
	return &models.ContributionSummary{
		Identity:              models.Identity{Username: username},
		CommitCount:           commits,
		ChangeRequestsByState: map[string]int{"merged": 1, "opened": 1},
		IssuesByState:         map[string]int{"closed": 1},
		IssueCommentCount:     2,
		PersonalProjectCount:  1,
	}
}

func testBatchResult() *models.BatchResult {
	return &models.BatchResult{
		ID:        "batch-1",
		Usernames: []string{"alice", "bob", "ghost"},
		Outcomes: map[string]models.Outcome{
			"alice": {Username: "alice", Summary: summaryFor("alice", 10)},
			"bob":   {Username: "bob", Summary: summaryFor("bob", 4)},
			"ghost": {Username: "ghost", ErrKind: "user_not_found"},
		},
	}
}

func TestWriteCSVRowPerRosterEntry(t *testing.T) {
	roster := []models.RosterEntry{
		{Username: "alice", DisplayName: "Alice Smith"},
		{Username: "bob"},
		{Username: "ghost"},
	}
	result := testBatchResult()
	report := grading.New(0, 0).Grade(result)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, roster, result, report))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	headerRow := rows[0]
	assert.Equal(t, "username", headerRow[0])
	for _, row := range rows[1:] {
		assert.Len(t, row, len(headerRow))
	}

	// Rows come out in roster order.
	assert.Equal(t, "alice", rows[1][0])
	assert.Equal(t, "bob", rows[2][0])
	assert.Equal(t, "ghost", rows[3][0])

	col := func(name string) int {
		for i, h := range headerRow {
			if h == name {
				return i
			}
		}
		t.Fatalf("missing column %s", name)
		return -1
	}

	alice := rows[1]
	assert.Equal(t, "ok", alice[col("status")])
	assert.Equal(t, "10", alice[col("commits")])
	assert.Equal(t, "2", alice[col("change_requests")])
	assert.Equal(t, "1", alice[col("mrs_merged")])
	assert.Equal(t, "1", alice[col("issues")])
	assert.Equal(t, "2", alice[col("comments")])
	// 10 commits + 2 change requests + 1 issue; comments stay out.
	assert.Equal(t, "13", alice[col("total_contributions")])
	// Cohort commit mean is 7; alice is more than 20% above it.
	assert.Equal(t, "Good", alice[col("commit_grade")])

	bob := rows[2]
	assert.Equal(t, "BelowAverage", bob[col("commit_grade")])

	// The failed user keeps a row so nobody silently disappears.
	ghost := rows[3]
	assert.Equal(t, "user_not_found", ghost[col("status")])
	assert.Equal(t, "", ghost[col("commits")])
}

func TestWriteCSVCaseInsensitiveLookup(t *testing.T) {
	roster := []models.RosterEntry{{Username: "ALICE"}}
	result := &models.BatchResult{
		Usernames: []string{"alice"},
		Outcomes: map[string]models.Outcome{
			"alice": {Username: "alice", Summary: summaryFor("alice", 3)},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, roster, result, nil))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ALICE", rows[1][0])
	assert.Equal(t, "ok", rows[1][2])
}
