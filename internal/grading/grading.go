package grading

import (
	"github.com/gitcohort/gitcohort-go/internal/models"
)

// Graded metrics. Comments are supplementary activity and are never
// graded or totalled.
const (
	MetricCommits        = "commits"
	MetricChangeRequests = "change_requests"
	MetricIssues         = "issues"
	MetricTotal          = "total_contributions"
)

// Metrics lists the graded metrics in display order.
var Metrics = []string{MetricCommits, MetricChangeRequests, MetricIssues, MetricTotal}

// CohortStats is one metric's baseline across the cohort.
type CohortStats struct {
	Metric     string  `json:"metric"`
	Mean       float64 `json:"mean"`
	CohortSize int     `json:"cohort_size"`
}

// Report carries every user's grades plus the cohort baselines they
// were computed against. Derived from one BatchResult, never persisted
// on its own.
type Report struct {
	Stats  map[string]CohortStats    `json:"stats"`
	Grades map[string][]models.Grade `json:"grades"`
}

// Engine computes cohort-relative grades.
type Engine struct {
	goodThreshold  float64
	belowThreshold float64
}

// New creates an engine. Zero thresholds take the symmetric ±20%
// defaults.
func New(goodThreshold, belowThreshold float64) *Engine {
	if goodThreshold == 0 {
		goodThreshold = 0.20
	}
	if belowThreshold == 0 {
		belowThreshold = -0.20
	}
	return &Engine{goodThreshold: goodThreshold, belowThreshold: belowThreshold}
}

// Grade scores every successful summary against the cohort mean. Failed
// users are excluded from the cohort entirely: scoring a fetch failure
// as zero activity would poison the average.
func (e *Engine) Grade(result *models.BatchResult) *Report {
	cohort := result.Succeeded()
	report := &Report{
		Stats:  make(map[string]CohortStats, len(Metrics)),
		Grades: make(map[string][]models.Grade, len(cohort)),
	}

	for _, metric := range Metrics {
		mean := cohortMean(cohort, metric)
		report.Stats[metric] = CohortStats{
			Metric:     metric,
			Mean:       mean,
			CohortSize: len(cohort),
		}

		for _, summary := range cohort {
			value := metricValue(summary, metric)
			delta := 0.0
			// A zero mean defines every delta as zero rather than
			// dividing by it; the whole cohort grades Average.
			if mean != 0 {
				delta = (float64(value) - mean) / mean
			}

			report.Grades[summary.Identity.Username] = append(
				report.Grades[summary.Identity.Username],
				models.Grade{
					Username:      summary.Identity.Username,
					Metric:        metric,
					Value:         value,
					CohortAverage: mean,
					Delta:         delta,
					Label:         e.label(delta),
				})
		}
	}
	return report
}

// label applies the thresholds with inclusive boundaries: exactly +20%
// is Good, exactly -20% is BelowAverage.
func (e *Engine) label(delta float64) models.GradeLabel {
	switch {
	case delta >= e.goodThreshold:
		return models.GradeGood
	case delta <= e.belowThreshold:
		return models.GradeBelowAverage
	default:
		return models.GradeAverage
	}
}

func cohortMean(cohort []*models.ContributionSummary, metric string) float64 {
	if len(cohort) == 0 {
		return 0
	}
	sum := 0
	for _, summary := range cohort {
		sum += metricValue(summary, metric)
	}
	return float64(sum) / float64(len(cohort))
}

func metricValue(summary *models.ContributionSummary, metric string) int {
	switch metric {
	case MetricCommits:
		return summary.CommitCount
	case MetricChangeRequests:
		return summary.ChangeRequestCount()
	case MetricIssues:
		return summary.IssueCount()
	case MetricTotal:
		return summary.TotalContributions()
	default:
		return 0
	}
}
