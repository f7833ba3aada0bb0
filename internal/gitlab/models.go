package gitlab

import (
	"time"
)

// Wire types for the subset of the GitLab REST API this engine reads.
// Only read paths are modeled; the engine never writes upstream.

// User is a profile as returned by /users.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PublicEmail string `json:"public_email"`
}

// BestEmail picks the address used for commit attribution. The public
// email is preferred; the private one is only present for admin tokens.
func (u User) BestEmail() string {
	if u.PublicEmail != "" {
		return u.PublicEmail
	}
	return u.Email
}

// Project is a repository as returned by the project list endpoints.
type Project struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	NameWithNamespace string `json:"name_with_namespace"`
}

// DisplayName prefers the namespaced name when present.
func (p Project) DisplayName() string {
	if p.NameWithNamespace != "" {
		return p.NameWithNamespace
	}
	return p.Name
}

// Commit is one repository commit. Attribution is by author email, with
// name matching as a fallback for users without a public email.
type Commit struct {
	ID             string    `json:"id"`
	ShortID        string    `json:"short_id"`
	Title          string    `json:"title"`
	AuthorName     string    `json:"author_name"`
	AuthorEmail    string    `json:"author_email"`
	CommitterName  string    `json:"committer_name"`
	CommitterEmail string    `json:"committer_email"`
	CreatedAt      time.Time `json:"created_at"`
}

// Timestamp implements models.Timestamped.
func (c Commit) Timestamp() time.Time { return c.CreatedAt }

// MergeRequest is a change request snapshot. State is mutable upstream
// but treated as fixed at fetch time.
type MergeRequest struct {
	ID        int64     `json:"id"`
	IID       int64     `json:"iid"`
	ProjectID int64     `json:"project_id"`
	State     string    `json:"state"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Timestamp implements models.Timestamped.
func (m MergeRequest) Timestamp() time.Time { return m.CreatedAt }

// Issue is an issue snapshot. GitLab reports "opened"/"closed"; a
// reopened issue comes back as "opened".
type Issue struct {
	ID        int64     `json:"id"`
	IID       int64     `json:"iid"`
	ProjectID int64     `json:"project_id"`
	State     string    `json:"state"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Timestamp implements models.Timestamped.
func (i Issue) Timestamp() time.Time { return i.CreatedAt }

// Author identifies the creator of an MR, issue or note.
type Author struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Note is a comment on an issue or merge request. System notes are
// upstream-generated events, not user activity.
type Note struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	System    bool      `json:"system"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Timestamp implements models.Timestamped.
func (n Note) Timestamp() time.Time { return n.CreatedAt }
