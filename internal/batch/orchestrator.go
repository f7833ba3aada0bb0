package batch

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gitcohort/gitcohort-go/internal/cache"
	"github.com/gitcohort/gitcohort-go/internal/errors"
	"github.com/gitcohort/gitcohort-go/internal/models"
	"github.com/gitcohort/gitcohort-go/internal/pipeline"
)

// Progress is invoked after each user's pipeline settles. Completion
// order is arbitrary; callers may use it for display only.
type Progress func(completed, total int)

// Orchestrator fans the per-user pipeline out across a bounded worker
// pool. Every requested username ends with exactly one outcome; one
// user's failure never cancels or retries a sibling. The sole exception
// is an auth failure, which aborts the whole batch because no sibling
// can succeed with the same credential.
type Orchestrator struct {
	pipeline    *pipeline.Pipeline
	cache       *cache.Cache
	logger      *logrus.Logger
	concurrency int
}

// New creates an orchestrator over the given pipeline.
func New(p *pipeline.Pipeline, c *cache.Cache, logger *logrus.Logger, concurrency int) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Orchestrator{
		pipeline:    p,
		cache:       c,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Run executes the batch. An exact repeat query (same cohort, same
// window) is served from the batch cache tier without touching the
// pipeline at all.
func (o *Orchestrator) Run(ctx context.Context, usernames []string, window models.Window, progress Progress) (*models.BatchResult, error) {
	if err := window.Validate(); err != nil {
		return nil, errors.ValidationErrorf("invalid window: %v", err)
	}

	unique := dedupeUsernames(usernames)
	if len(unique) == 0 {
		return nil, errors.ValidationErrorf("no usernames to process")
	}

	key := cache.BatchKey(unique, window)
	var cached models.BatchResult
	if found, err := o.cache.Lookup(ctx, key, &cached); err == nil && found {
		o.logger.WithFields(logrus.Fields{
			"batch_id": cached.ID,
			"users":    len(unique),
		}).Info("batch served from cache")
		if progress != nil {
			progress(len(unique), len(unique))
		}
		return &cached, nil
	}

	result, err := o.run(ctx, unique, window, progress)
	if err != nil {
		return nil, err
	}

	// A cancelled run carries Cancelled outcomes; caching those would
	// replay the cancellation for an hour.
	if ctx.Err() == nil {
		if err := o.cache.Store(ctx, key, result, o.cache.BatchTTL()); err != nil {
			o.logger.WithError(err).Warn("batch cache write failed")
		}
	}
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, usernames []string, window models.Window, progress Progress) (*models.BatchResult, error) {
	started := time.Now()
	total := len(usernames)

	o.logger.WithFields(logrus.Fields{
		"users":       total,
		"window":      window.String(),
		"concurrency": o.concurrency,
	}).Info("starting batch")

	var (
		mu        sync.Mutex
		completed atomic.Int64
	)
	outcomes := make(map[string]models.Outcome, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for _, username := range usernames {
		username := username
		g.Go(func() error {
			summary, err := o.pipeline.Run(gctx, username, window)

			outcome := models.Outcome{Username: username, Summary: summary, Err: err}
			if err != nil {
				outcome.Summary = nil
				outcome.ErrKind = errors.KindString(errors.GetKind(err))
				o.logger.WithError(err).WithField("username", username).
					Warn("user pipeline failed")
			}

			mu.Lock()
			outcomes[username] = outcome
			mu.Unlock()

			if progress != nil {
				progress(int(completed.Add(1)), total)
			}

			// Only a credential failure propagates: it cancels the
			// sibling pipelines via gctx and aborts the batch.
			if errors.IsFatal(err) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.WithError(err).Error("batch aborted")
		return nil, err
	}

	result := &models.BatchResult{
		ID:        uuid.NewString(),
		Window:    window,
		Usernames: usernames,
		Outcomes:  outcomes,
		StartedAt: started.UTC(),
		Duration:  time.Since(started),
	}

	o.logger.WithFields(logrus.Fields{
		"batch_id": result.ID,
		"users":    total,
		"failed":   result.FailedCount(),
		"duration": result.Duration.String(),
	}).Info("batch finished")
	return result, nil
}

func dedupeUsernames(usernames []string) []string {
	seen := make(map[string]bool, len(usernames))
	out := make([]string, 0, len(usernames))
	for _, username := range usernames {
		u := strings.TrimSpace(username)
		if u == "" {
			continue
		}
		lower := strings.ToLower(u)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, u)
	}
	return out
}
