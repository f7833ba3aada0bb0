package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gitcohort/gitcohort-go/internal/grading"
	"github.com/gitcohort/gitcohort-go/internal/models"
)

var header = []string{
	"username", "display_name", "status",
	"commits", "change_requests", "mrs_opened", "mrs_merged", "mrs_closed",
	"issues", "issues_opened", "issues_closed",
	"comments", "personal_projects", "contributed_projects",
	"total_contributions", "partial",
	"commit_grade", "change_request_grade", "issue_grade", "contribution_grade",
}

// WriteCSV renders one row per roster entry, in the roster's input
// order, merging each user's summary with their grades. Failed users
// get a row with their error kind so no one silently disappears from
// the export.
func WriteCSV(w io.Writer, roster []models.RosterEntry, result *models.BatchResult, report *grading.Report) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}

	for _, entry := range roster {
		outcome, ok := lookupOutcome(result, entry.Username)
		if !ok {
			continue
		}

		row := buildRow(entry, outcome, report)
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write export row for %s: %w", entry.Username, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// lookupOutcome tolerates case differences between roster input and the
// orchestrator's keys.
func lookupOutcome(result *models.BatchResult, username string) (models.Outcome, bool) {
	if o, ok := result.Outcomes[username]; ok {
		return o, true
	}
	for key, o := range result.Outcomes {
		if strings.EqualFold(key, username) {
			return o, true
		}
	}
	return models.Outcome{}, false
}

func buildRow(entry models.RosterEntry, outcome models.Outcome, report *grading.Report) []string {
	if !outcome.OK() {
		status := outcome.ErrKind
		if status == "" {
			status = "FAILED"
		}
		row := []string{entry.Username, entry.DisplayName, status}
		for len(row) < len(header) {
			row = append(row, "")
		}
		return row
	}

	s := outcome.Summary
	row := []string{
		entry.Username,
		entry.DisplayName,
		"ok",
		strconv.Itoa(s.CommitCount),
		strconv.Itoa(s.ChangeRequestCount()),
		strconv.Itoa(s.ChangeRequestsByState["opened"]),
		strconv.Itoa(s.ChangeRequestsByState["merged"]),
		strconv.Itoa(s.ChangeRequestsByState["closed"]),
		strconv.Itoa(s.IssueCount()),
		strconv.Itoa(s.IssuesByState["opened"]),
		strconv.Itoa(s.IssuesByState["closed"]),
		strconv.Itoa(s.CommentCount()),
		strconv.Itoa(s.PersonalProjectCount),
		strconv.Itoa(s.ContributedProjectCount),
		strconv.Itoa(s.TotalContributions()),
		strconv.FormatBool(s.Partial),
	}

	grades := map[string]string{}
	if report != nil {
		for _, g := range report.Grades[s.Identity.Username] {
			grades[g.Metric] = string(g.Label)
		}
	}
	row = append(row,
		grades[grading.MetricCommits],
		grades[grading.MetricChangeRequests],
		grades[grading.MetricIssues],
		grades[grading.MetricTotal],
	)
	return row
}
