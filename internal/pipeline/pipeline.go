package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gitcohort/gitcohort-go/internal/cache"
	"github.com/gitcohort/gitcohort-go/internal/errors"
	"github.com/gitcohort/gitcohort-go/internal/gitlab"
	"github.com/gitcohort/gitcohort-go/internal/models"
)

// State names one stage of a user's fetch pipeline.
type State string

const (
	StateResolving             State = "resolving"
	StateFetchingProjects      State = "fetching_projects"
	StateFetchingContributions State = "fetching_contributions"
	StateFetchingComments      State = "fetching_comments"
	StateDone                  State = "done"
	StateFailed                State = "failed"
)

// Options tunes one pipeline instance.
type Options struct {
	// Timeout bounds one user's whole pipeline. On expiry the user is a
	// typed Timeout failure; partial data is discarded, never surfaced
	// as if it were complete.
	Timeout time.Duration
	// MaxProjects caps how many deduplicated projects are processed.
	MaxProjects int
	// ProjectWorkers bounds per-user project fan-out. The transport's
	// global in-flight bound is the real rate guard; this only keeps
	// goroutine counts sane.
	ProjectWorkers int
}

// Pipeline fetches and aggregates one user's contribution activity.
// Per-resource errors are converted here into either a Failed outcome or
// a partial-degradation flag; they never propagate raw to the caller.
type Pipeline struct {
	client *gitlab.Client
	cache  *cache.Cache
	logger *logrus.Logger
	opts   Options
}

// New creates a pipeline over the given client and cache.
func New(client *gitlab.Client, c *cache.Cache, logger *logrus.Logger, opts Options) *Pipeline {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.MaxProjects <= 0 {
		opts.MaxProjects = 50
	}
	if opts.ProjectWorkers <= 0 {
		opts.ProjectWorkers = 4
	}
	return &Pipeline{client: client, cache: c, logger: logger, opts: opts}
}

// projectBundle is the cached per-project unit: every windowed resource
// for one user in one project, plus the comment counts derived from
// them. One cache entry per (user, project, window).
type projectBundle struct {
	Project       gitlab.Project         `json:"project"`
	Commits       []gitlab.Commit        `json:"commits"`
	MergeRequests []gitlab.MergeRequest  `json:"merge_requests"`
	Issues        []gitlab.Issue         `json:"issues"`
	IssueComments int                    `json:"issue_comments"`
	MRComments    int                    `json:"mr_comments"`
	Reasons       []string               `json:"reasons,omitempty"`
}

// Run executes the full state machine for one user and returns a
// complete summary or a typed error.
func (p *Pipeline) Run(ctx context.Context, username string, window models.Window) (*models.ContributionSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	log := p.logger.WithFields(logrus.Fields{
		"username": username,
		"window":   window.String(),
	})

	log.WithField("state", StateResolving).Debug("pipeline state")
	identity, err := p.resolveIdentity(ctx, username)
	if err != nil {
		return nil, p.asPipelineError(ctx, err)
	}

	log.WithField("state", StateFetchingProjects).Debug("pipeline state")
	summary := &models.ContributionSummary{
		Identity:              *identity,
		ChangeRequestsByState: map[string]int{},
		IssuesByState:         map[string]int{},
		WindowStart:           window.Start,
		WindowEnd:             window.End,
		FetchedAt:             time.Now().UTC(),
	}

	projects, err := p.fetchProjects(ctx, identity, summary)
	if err != nil {
		return nil, p.asPipelineError(ctx, err)
	}

	log.WithFields(logrus.Fields{
		"state":    StateFetchingContributions,
		"projects": len(projects),
	}).Debug("pipeline state")

	bundles := make([]*projectBundle, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.ProjectWorkers)
	for i, project := range projects {
		i, project := i, project
		g.Go(func() error {
			bundle, err := p.fetchProjectBundle(gctx, identity, project, window)
			if err != nil {
				return err
			}
			bundles[i] = bundle
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, p.asPipelineError(ctx, err)
	}

	for _, bundle := range bundles {
		applyBundle(summary, bundle, window)
	}

	log.WithFields(logrus.Fields{
		"state":   StateDone,
		"total":   summary.TotalContributions(),
		"partial": summary.Partial,
	}).Info("pipeline finished")
	return summary, nil
}

// resolveIdentity maps a username to its Identity, caching the result.
// A missing user is terminal for this pipeline but never for siblings.
func (p *Pipeline) resolveIdentity(ctx context.Context, username string) (*models.Identity, error) {
	var identity models.Identity
	err := p.cache.GetOrFetch(ctx, cache.IdentityKey(username), p.cache.UserTTL(), &identity,
		func(ctx context.Context) (interface{}, error) {
			user, err := p.client.LookupUser(ctx, username)
			if err != nil {
				return nil, err
			}
			// The lookup listing omits email fields; the detail call
			// fills them in when the token is allowed to see them.
			if detail, err := p.client.GetUser(ctx, user.ID); err == nil {
				user = detail
			}
			return models.Identity{
				ID:          user.ID,
				Username:    user.Username,
				DisplayName: user.Name,
				Email:       user.BestEmail(),
			}, nil
		})
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// fetchProjects runs the personal and contributed listings concurrently.
// Either side may fail on its own: the other side still counts, and the
// failure degrades the summary instead of killing the pipeline.
func (p *Pipeline) fetchProjects(ctx context.Context, identity *models.Identity, summary *models.ContributionSummary) ([]gitlab.Project, error) {
	var (
		personal    []gitlab.Project
		contributed []gitlab.Project
		personalErr error
		contribErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		personal, err = p.listCachedProjects(gctx, identity, models.RelationPersonal)
		if err != nil {
			if isAbort(err) {
				return err
			}
			personalErr = err
		}
		return nil
	})
	g.Go(func() error {
		var err error
		contributed, err = p.listCachedProjects(gctx, identity, models.RelationContributed)
		if err != nil {
			if isAbort(err) {
				return err
			}
			contribErr = err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if personalErr != nil {
		summary.MarkPartial("personal project listing failed")
		p.logger.WithError(personalErr).WithField("username", identity.Username).
			Warn("personal project fetch degraded")
	}
	if contribErr != nil {
		summary.MarkPartial("contributed project listing failed")
		p.logger.WithError(contribErr).WithField("username", identity.Username).
			Warn("contributed project fetch degraded")
	}

	summary.PersonalProjectCount = len(personal)
	summary.ContributedProjectCount = len(contributed)

	// Merge and dedup: a project can be both personal and contributed,
	// and its contributions must only count once.
	seen := make(map[int64]bool)
	merged := make([]gitlab.Project, 0, len(personal)+len(contributed))
	for _, project := range append(personal, contributed...) {
		if seen[project.ID] {
			continue
		}
		seen[project.ID] = true
		merged = append(merged, project)
	}
	if len(merged) > p.opts.MaxProjects {
		p.logger.WithFields(logrus.Fields{
			"username": identity.Username,
			"projects": len(merged),
			"cap":      p.opts.MaxProjects,
		}).Warn("project set truncated at cap")
		summary.MarkPartial(fmt.Sprintf("project set truncated to %d", p.opts.MaxProjects))
		merged = merged[:p.opts.MaxProjects]
	}
	return merged, nil
}

func (p *Pipeline) listCachedProjects(ctx context.Context, identity *models.Identity, relation models.ProjectRelation) ([]gitlab.Project, error) {
	key := fmt.Sprintf("%s:%d:%s", cache.KindProjects, identity.ID, relation)
	var projects []gitlab.Project
	err := p.cache.GetOrFetch(ctx, key, p.cache.UserTTL(), &projects,
		func(ctx context.Context) (interface{}, error) {
			if relation == models.RelationPersonal {
				return p.client.ListProjects(ctx, identity.ID)
			}
			return p.client.ListContributedProjects(ctx, identity.ID)
		})
	return projects, err
}

// fetchProjectBundle gathers one project's windowed contributions and
// comment counts, through the per-resource cache tier. Partial failures
// are recorded in the bundle, not raised.
func (p *Pipeline) fetchProjectBundle(ctx context.Context, identity *models.Identity, project gitlab.Project, window models.Window) (*projectBundle, error) {
	scope := fmt.Sprintf("%d:%d", identity.ID, project.ID)
	key := cache.ResourceKey("contrib", scope, window)

	var bundle projectBundle
	err := p.cache.GetOrFetch(ctx, key, p.cache.UserTTL(), &bundle,
		func(ctx context.Context) (interface{}, error) {
			return p.fetchBundleUpstream(ctx, identity, project, window)
		})
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (p *Pipeline) fetchBundleUpstream(ctx context.Context, identity *models.Identity, project gitlab.Project, window models.Window) (*projectBundle, error) {
	bundle := &projectBundle{Project: project}

	commits, err := p.fetchCommits(ctx, identity, project.ID, window)
	if err != nil {
		if isAbort(err) {
			return nil, err
		}
		bundle.Reasons = append(bundle.Reasons,
			fmt.Sprintf("commits unavailable for %s", project.DisplayName()))
	} else {
		bundle.Commits = commits
	}

	mrs, err := p.client.ListMergeRequests(ctx, project.ID, identity.ID, window.Start, window.End)
	if err != nil {
		if isAbort(err) {
			return nil, err
		}
		bundle.Reasons = append(bundle.Reasons,
			fmt.Sprintf("merge requests unavailable for %s", project.DisplayName()))
	} else {
		bundle.MergeRequests = mrs
	}

	issues, err := p.client.ListIssues(ctx, project.ID, identity.ID, window.Start, window.End)
	if err != nil {
		if isAbort(err) {
			return nil, err
		}
		bundle.Reasons = append(bundle.Reasons,
			fmt.Sprintf("issues unavailable for %s", project.DisplayName()))
	} else {
		bundle.Issues = issues
	}

	// Comment counting is the N+1 hot path and is explicitly allowed to
	// degrade: a failed subset leaves the counts a lower bound.
	if err := p.countComments(ctx, identity, project.ID, bundle); err != nil {
		return nil, err
	}

	return bundle, nil
}

func (p *Pipeline) countComments(ctx context.Context, identity *models.Identity, projectID int64, bundle *projectBundle) error {
	degraded := false

	for _, mr := range bundle.MergeRequests {
		n, err := p.client.CountNotes(ctx, projectID, gitlab.NoteParentMergeRequest, mr.IID, identity.ID)
		if err != nil {
			if isAbort(err) {
				return err
			}
			degraded = true
			continue
		}
		bundle.MRComments += n
	}
	for _, issue := range bundle.Issues {
		n, err := p.client.CountNotes(ctx, projectID, gitlab.NoteParentIssue, issue.IID, identity.ID)
		if err != nil {
			if isAbort(err) {
				return err
			}
			degraded = true
			continue
		}
		bundle.IssueComments += n
	}

	if degraded {
		bundle.Reasons = append(bundle.Reasons,
			fmt.Sprintf("comment counts incomplete for %s", bundle.Project.DisplayName()))
	}
	return nil
}

// applyBundle folds one project's bundle into the summary, applying the
// window filter a second time. The fetch already narrowed server-side;
// this pass enforces the inclusive bounds exactly and is what makes
// re-aggregation from cached bundles equivalent to a fresh fetch.
func applyBundle(summary *models.ContributionSummary, bundle *projectBundle, window models.Window) {
	commits := models.FilterInWindow(window, bundle.Commits)
	mrs := models.FilterInWindow(window, bundle.MergeRequests)
	issues := models.FilterInWindow(window, bundle.Issues)

	summary.CommitCount += len(commits)
	for _, mr := range mrs {
		summary.ChangeRequestsByState[strings.ToLower(mr.State)]++
	}
	for _, issue := range issues {
		summary.IssuesByState[strings.ToLower(issue.State)]++
	}
	summary.ChangeRequestCommentCount += bundle.MRComments
	summary.IssueCommentCount += bundle.IssueComments

	if len(commits) > 0 || len(mrs) > 0 || len(issues) > 0 {
		summary.Projects = append(summary.Projects, models.ProjectBreakdown{
			ProjectID:      bundle.Project.ID,
			ProjectName:    bundle.Project.DisplayName(),
			Commits:        len(commits),
			ChangeRequests: len(mrs),
			Issues:         len(issues),
			CommentCount:   bundle.MRComments + bundle.IssueComments,
		})
	}

	for _, reason := range bundle.Reasons {
		summary.MarkPartial(reason)
	}
}

// asPipelineError maps any escaped error to the typed failure for this
// user, preferring the pipeline's own deadline over the wrapped cause.
func (p *Pipeline) asPipelineError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.FromContext(ctx.Err())
	}
	if kind := errors.GetKind(err); kind == errors.KindTransport && !errors.IsKind(err, errors.KindTransport) {
		// Untyped failure: wrap so callers always see a typed outcome.
		return errors.TransportError(err, "pipeline failed")
	}
	return err
}

// isAbort reports whether an error must stop the pipeline rather than
// degrade it: credential failures poison everything, and context ends
// mean the result would be a truncated lie.
func isAbort(err error) bool {
	switch errors.GetKind(err) {
	case errors.KindAuth, errors.KindCancelled, errors.KindTimeout:
		return true
	default:
		return false
	}
}
