package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gitcohort/gitcohort-go/internal/errors"
)

// Note listings are the N+1 hot path; three pages of 100 is already far
// past any realistic comment thread.
const notesMaxPages = 3

// Client exposes the fixed set of read-only contribution resources.
type Client struct {
	transport *Transport
}

// NewClient wraps a transport.
func NewClient(t *Transport) *Client {
	return &Client{transport: t}
}

// LookupUser resolves a username to a profile. An empty result is a
// typed UserNotFound, never a nil success.
func (c *Client) LookupUser(ctx context.Context, username string) (*User, error) {
	query := url.Values{"username": []string{username}}
	body, _, err := c.transport.Get(ctx, "/users", query)
	if err != nil {
		return nil, err
	}

	var users []User
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("decode user lookup: %w", err)
	}
	if len(users) == 0 {
		return nil, errors.UserNotFound(username)
	}
	return &users[0], nil
}

// GetUser fetches the full profile by id. The list endpoint omits email
// fields, so identity resolution follows up with this call.
func (c *Client) GetUser(ctx context.Context, id int64) (*User, error) {
	body, _, err := c.transport.Get(ctx, fmt.Sprintf("/users/%d", id), nil)
	if err != nil {
		return nil, err
	}
	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("decode user %d: %w", id, err)
	}
	return &user, nil
}

// ListProjects returns the user's personal projects.
func (c *Client) ListProjects(ctx context.Context, userID int64) ([]Project, error) {
	pager := c.transport.NewPager(
		fmt.Sprintf("/users/%d/projects", userID),
		url.Values{"simple": []string{"true"}},
	)
	return collectAll[Project](ctx, pager)
}

// ListContributedProjects returns the projects the user has contributed to.
func (c *Client) ListContributedProjects(ctx context.Context, userID int64) ([]Project, error) {
	pager := c.transport.NewPager(
		fmt.Sprintf("/users/%d/contributed_projects", userID),
		url.Values{"simple": []string{"true"}},
	)
	return collectAll[Project](ctx, pager)
}

// CommitListOptions narrows a commit listing. AuthorEmail filters
// server-side; leaving it empty lists every commit in the window for
// client-side attribution.
type CommitListOptions struct {
	AuthorEmail string
	Since       time.Time
	Until       time.Time
}

// EachCommitPage walks commit pages newest-first, handing each decoded
// page to fn. fn returning StopPaging ends the walk cleanly.
func (c *Client) EachCommitPage(ctx context.Context, projectID int64, opts CommitListOptions, fn func([]Commit) error) error {
	query := url.Values{}
	if opts.AuthorEmail != "" {
		query.Set("author_email", opts.AuthorEmail)
	}
	if !opts.Since.IsZero() {
		query.Set("since", opts.Since.Format(time.RFC3339))
	}
	if !opts.Until.IsZero() {
		query.Set("until", opts.Until.Format(time.RFC3339))
	}

	pager := c.transport.NewPager(
		fmt.Sprintf("/projects/%d/repository/commits", projectID), query)
	return eachPage(ctx, pager, fn)
}

// StopPaging is the sentinel a page callback returns to end pagination
// early without error.
func (c *Client) StopPaging() error { return errStopPaging }

// ListCommits flattens EachCommitPage into one slice.
func (c *Client) ListCommits(ctx context.Context, projectID int64, opts CommitListOptions) ([]Commit, error) {
	var all []Commit
	err := c.EachCommitPage(ctx, projectID, opts, func(page []Commit) error {
		all = append(all, page...)
		return nil
	})
	return all, err
}

// ListMergeRequests returns the user's merge requests in the window,
// any state.
func (c *Client) ListMergeRequests(ctx context.Context, projectID, authorID int64, since, until time.Time) ([]MergeRequest, error) {
	query := url.Values{
		"author_id":      []string{strconv.FormatInt(authorID, 10)},
		"created_after":  []string{since.Format(time.RFC3339)},
		"created_before": []string{until.Format(time.RFC3339)},
	}
	pager := c.transport.NewPager(
		fmt.Sprintf("/projects/%d/merge_requests", projectID), query)
	return collectAll[MergeRequest](ctx, pager)
}

// ListIssues returns the user's issues in the window, any state.
func (c *Client) ListIssues(ctx context.Context, projectID, authorID int64, since, until time.Time) ([]Issue, error) {
	query := url.Values{
		"author_id":      []string{strconv.FormatInt(authorID, 10)},
		"state":          []string{"all"},
		"created_after":  []string{since.Format(time.RFC3339)},
		"created_before": []string{until.Format(time.RFC3339)},
	}
	pager := c.transport.NewPager(
		fmt.Sprintf("/projects/%d/issues", projectID), query)
	return collectAll[Issue](ctx, pager)
}

// NoteParent selects which notes endpoint to hit.
type NoteParent string

const (
	NoteParentIssue        NoteParent = "issues"
	NoteParentMergeRequest NoteParent = "merge_requests"
)

// CountNotes counts the user's own comments under one issue or merge
// request. System notes and blank bodies are upstream noise, not
// activity.
func (c *Client) CountNotes(ctx context.Context, projectID int64, parent NoteParent, iid, authorID int64) (int, error) {
	pager := c.transport.NewPager(
		fmt.Sprintf("/projects/%d/%s/%d/notes", projectID, parent, iid), nil,
	).WithMaxPages(notesMaxPages)

	count := 0
	err := eachPage(ctx, pager, func(notes []Note) error {
		for _, note := range notes {
			if note.System || note.Author.ID != authorID {
				continue
			}
			if strings.TrimSpace(note.Body) == "" {
				continue
			}
			count++
		}
		return nil
	})
	return count, err
}
