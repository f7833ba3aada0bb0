package pipeline

import (
	"context"
	"strings"

	"github.com/gitcohort/gitcohort-go/internal/gitlab"
	"github.com/gitcohort/gitcohort-go/internal/models"
)

// fetchCommits attributes a project's commits to the identity. The
// server-side author_email filter is the cheap, precise path; identities
// without a visible email fall back to scanning the window's commits and
// matching author fields. Both paths dedup by SHA.
func (p *Pipeline) fetchCommits(ctx context.Context, identity *models.Identity, projectID int64, window models.Window) ([]gitlab.Commit, error) {
	var commits []gitlab.Commit

	if identity.Email != "" {
		fetched, err := p.client.ListCommits(ctx, projectID, gitlab.CommitListOptions{
			AuthorEmail: identity.Email,
			Since:       window.Start,
			Until:       window.End,
		})
		if err != nil {
			return nil, err
		}
		commits = fetched
	}

	if len(commits) == 0 {
		scanned, err := p.scanCommitsByName(ctx, identity, projectID, window)
		if err != nil {
			// The email path already produced a definite (empty) answer;
			// a failed fallback scan only loses the name-matched extras.
			if identity.Email != "" && !isAbort(err) {
				return commits, nil
			}
			return nil, err
		}
		commits = scanned
	}

	return dedupeCommits(commits), nil
}

// scanCommitsByName lists the window's commits without an author filter
// and keeps the ones whose author or committer matches the identity's
// name or username. Pages arrive newest-first, so the walk stops as soon
// as a whole page predates the window.
func (p *Pipeline) scanCommitsByName(ctx context.Context, identity *models.Identity, projectID int64, window models.Window) ([]gitlab.Commit, error) {
	name := strings.ToLower(identity.DisplayName)
	username := strings.ToLower(identity.Username)

	var matched []gitlab.Commit
	err := p.client.EachCommitPage(ctx, projectID, gitlab.CommitListOptions{
		Since: window.Start,
		Until: window.End,
	}, func(page []gitlab.Commit) error {
		pastWindow := true
		for _, commit := range page {
			if !commit.CreatedAt.Before(window.Start) {
				pastWindow = false
			}
			if commitMatchesIdentity(commit, name, username, identity.Email) {
				matched = append(matched, commit)
			}
		}
		if pastWindow {
			return p.client.StopPaging()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}

func commitMatchesIdentity(commit gitlab.Commit, name, username, email string) bool {
	authorName := strings.ToLower(commit.AuthorName)
	committerName := strings.ToLower(commit.CommitterName)

	if name != "" && (strings.Contains(authorName, name) || strings.Contains(committerName, name)) {
		return true
	}
	if username != "" && (strings.Contains(authorName, username) || strings.Contains(committerName, username)) {
		return true
	}
	if email != "" {
		lower := strings.ToLower(email)
		if strings.EqualFold(commit.AuthorEmail, lower) || strings.EqualFold(commit.CommitterEmail, lower) {
			return true
		}
	}
	return false
}

func dedupeCommits(commits []gitlab.Commit) []gitlab.Commit {
	seen := make(map[string]bool, len(commits))
	out := make([]gitlab.Commit, 0, len(commits))
	for _, commit := range commits {
		if seen[commit.ID] {
			continue
		}
		seen[commit.ID] = true
		out = append(out, commit)
	}
	return out
}
