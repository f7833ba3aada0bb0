package models

import (
	"time"
)

// Identity is a resolved upstream user profile. Immutable once fetched;
// looked up by username, attributed to by id and email.
type Identity struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// ProjectRelation distinguishes how a user is attached to a project.
type ProjectRelation string

const (
	RelationPersonal    ProjectRelation = "personal"
	RelationContributed ProjectRelation = "contributed"
)

// Project is a repository the user owns or has contributed to.
type Project struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Relation ProjectRelation `json:"relation"`
}

// ProjectBreakdown is the per-project slice of a summary, kept so exports
// can show a drill-down next to the totals.
type ProjectBreakdown struct {
	ProjectID      int64  `json:"project_id"`
	ProjectName    string `json:"project_name"`
	Commits        int    `json:"commits"`
	ChangeRequests int    `json:"change_requests"`
	Issues         int    `json:"issues"`
	CommentCount   int    `json:"comment_count"`
}

// ContributionSummary is the per-user, per-window aggregate. It is the
// unit of caching and the unit consumed by grading, always scoped to an
// explicit window.
type ContributionSummary struct {
	Identity Identity `json:"identity"`

	CommitCount           int            `json:"commit_count"`
	ChangeRequestsByState map[string]int `json:"change_requests_by_state"`
	IssuesByState         map[string]int `json:"issues_by_state"`

	IssueCommentCount         int `json:"issue_comment_count"`
	ChangeRequestCommentCount int `json:"change_request_comment_count"`

	PersonalProjectCount    int `json:"personal_project_count"`
	ContributedProjectCount int `json:"contributed_project_count"`

	Projects []ProjectBreakdown `json:"projects,omitempty"`

	// Partial marks a summary whose counts are a lower bound because a
	// non-fatal subset of fetches failed. Reasons list what degraded.
	Partial        bool     `json:"partial"`
	PartialReasons []string `json:"partial_reasons,omitempty"`

	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// ChangeRequestCount sums the per-state change request counts.
func (s *ContributionSummary) ChangeRequestCount() int {
	total := 0
	for _, n := range s.ChangeRequestsByState {
		total += n
	}
	return total
}

// IssueCount sums the per-state issue counts.
func (s *ContributionSummary) IssueCount() int {
	total := 0
	for _, n := range s.IssuesByState {
		total += n
	}
	return total
}

// CommentCount is the combined issue and change request comment count.
// Comments are supplementary activity and never enter TotalContributions.
func (s *ContributionSummary) CommentCount() int {
	return s.IssueCommentCount + s.ChangeRequestCommentCount
}

// TotalContributions is always recomputed from its components so the
// total can never drift from the counts it is made of.
func (s *ContributionSummary) TotalContributions() int {
	return s.CommitCount + s.ChangeRequestCount() + s.IssueCount()
}

// MarkPartial flags the summary as a lower bound and records why.
func (s *ContributionSummary) MarkPartial(reason string) {
	s.Partial = true
	s.PartialReasons = append(s.PartialReasons, reason)
}

// Outcome is one user's terminal batch result: exactly one of Summary or
// Err is set.
type Outcome struct {
	Username string               `json:"username"`
	Summary  *ContributionSummary `json:"summary,omitempty"`
	Err      error                `json:"-"`
	ErrKind  string               `json:"error,omitempty"`
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Summary != nil
}

// BatchResult maps every requested username to its outcome. A batch never
// fails wholesale; each entry is independently success or typed failure.
type BatchResult struct {
	ID        string             `json:"id"`
	Window    Window             `json:"window"`
	Usernames []string           `json:"usernames"`
	Outcomes  map[string]Outcome `json:"outcomes"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
}

// Succeeded returns the successful summaries, the grading cohort.
func (b *BatchResult) Succeeded() []*ContributionSummary {
	out := make([]*ContributionSummary, 0, len(b.Outcomes))
	for _, username := range b.Usernames {
		if o, ok := b.Outcomes[username]; ok && o.OK() {
			out = append(out, o.Summary)
		}
	}
	return out
}

// FailedCount returns how many users ended in a typed failure.
func (b *BatchResult) FailedCount() int {
	n := 0
	for _, o := range b.Outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}

// GradeLabel is the cohort-relative verdict for one metric.
type GradeLabel string

const (
	GradeGood         GradeLabel = "Good"
	GradeAverage      GradeLabel = "Average"
	GradeBelowAverage GradeLabel = "BelowAverage"
)

// Grade is one user's standing on one metric relative to the cohort mean.
// Derived from a BatchResult, never persisted on its own.
type Grade struct {
	Username      string     `json:"username"`
	Metric        string     `json:"metric"`
	Value         int        `json:"value"`
	CohortAverage float64    `json:"cohort_average"`
	Delta         float64    `json:"delta"`
	Label         GradeLabel `json:"label"`
}

// RosterEntry is one row of the batch input. DisplayName is cosmetic and
// never used for API lookup.
type RosterEntry struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}
