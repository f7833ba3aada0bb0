package gitlab

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/gitcohort/gitcohort-go/internal/errors"
)

const (
	defaultRetryBase   = 1 * time.Second
	defaultRetryCap    = 30 * time.Second
	defaultMaxAttempts = 5
	// Network timeouts get a smaller linear-backoff budget than
	// rate-limit responses.
	defaultTimeoutRetries = 3
)

// TransportConfig configures request execution against one deployment.
type TransportConfig struct {
	BaseURL        string
	Token          string
	RateLimit      int           // requests per second
	MaxInFlight    int64         // global bound shared by all pipelines
	RequestTimeout time.Duration // per-request deadline

	// Retry knobs. Zero values take the defaults above; tests shrink them.
	RetryBase   time.Duration
	RetryCap    time.Duration
	MaxAttempts int
}

// Transport executes authenticated requests against the upstream API,
// pacing them with a shared rate limiter and a global in-flight bound.
// The credential travels in a header, never in the URL, so request
// logging can never leak it.
type Transport struct {
	httpClient *http.Client
	baseURL    string
	token      string

	limiter  *rate.Limiter
	inflight *semaphore.Weighted
	logger   *slog.Logger

	retryBase      time.Duration
	retryCap       time.Duration
	maxAttempts    int
	timeoutRetries int
}

// NewTransport builds a transport from config, applying defaults for
// unset knobs.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	if cfg.BaseURL == "" {
		return nil, errors.ConfigError("gitlab base URL missing")
	}
	if cfg.Token == "" {
		return nil, errors.ConfigError("gitlab token missing")
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = defaultRetryCap
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	return &Transport{
		httpClient:     &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		token:          cfg.Token,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		inflight:       semaphore.NewWeighted(cfg.MaxInFlight),
		logger:         slog.Default().With("component", "transport"),
		retryBase:      cfg.RetryBase,
		retryCap:       cfg.RetryCap,
		maxAttempts:    cfg.MaxAttempts,
		timeoutRetries: defaultTimeoutRetries,
	}, nil
}

// Get issues one authenticated GET and returns the body and headers.
// Retry policy:
//   - 429 and 5xx: exponential backoff, jittered, capped, up to maxAttempts
//   - network errors: linear backoff, up to timeoutRetries
//   - 401/403: immediate AuthError, a bad credential cannot be retried away
//   - 404: NotFoundError, other 4xx: ClientError, neither retried
func (t *Transport) Get(ctx context.Context, path string, query url.Values) ([]byte, http.Header, error) {
	var (
		attempt        int
		timeoutRetries int
	)

	for {
		body, header, err := t.do(ctx, path, query)
		if err == nil {
			return body, header, nil
		}

		var retryable *retryableError
		if !stderrors.As(err, &retryable) {
			return nil, nil, err
		}

		var delay time.Duration
		if retryable.network {
			timeoutRetries++
			if timeoutRetries > t.timeoutRetries {
				return nil, nil, errors.TransportError(retryable.cause,
					fmt.Sprintf("request to %s failed after %d timeout retries", path, t.timeoutRetries))
			}
			delay = time.Duration(timeoutRetries) * t.retryBase
		} else {
			attempt++
			if attempt >= t.maxAttempts {
				if retryable.status == http.StatusTooManyRequests {
					return nil, nil, errors.RateLimited(
						fmt.Sprintf("rate limited on %s after %d attempts", path, t.maxAttempts))
				}
				return nil, nil, errors.TransportError(retryable.cause,
					fmt.Sprintf("request to %s failed after %d attempts", path, t.maxAttempts))
			}
			delay = t.backoff(attempt)
		}

		t.logger.Debug("retrying request",
			"path", path, "attempt", attempt, "status", retryable.status, "delay", delay)

		if err := sleepCtx(ctx, delay); err != nil {
			return nil, nil, errors.FromContext(err)
		}
	}
}

type retryableError struct {
	status  int
	network bool
	cause   error
}

func (e *retryableError) Error() string {
	if e.network {
		return fmt.Sprintf("network error: %v", e.cause)
	}
	return fmt.Sprintf("retryable status %d", e.status)
}

func (t *Transport) do(ctx context.Context, path string, query url.Values) ([]byte, http.Header, error) {
	if err := t.inflight.Acquire(ctx, 1); err != nil {
		return nil, nil, errors.FromContext(err)
	}
	defer t.inflight.Release(1)

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, nil, errors.FromContext(err)
	}

	u := t.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", t.token)
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, errors.FromContext(ctx.Err())
		}
		return nil, nil, &retryableError{network: true, cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &retryableError{network: true, cause: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, resp.Header, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, nil, errors.AuthError(
			fmt.Sprintf("upstream rejected credential with status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, nil, &retryableError{
			status: resp.StatusCode,
			cause:  fmt.Errorf("status %d from %s", resp.StatusCode, path),
		}
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil, errors.NotFoundError(fmt.Sprintf("resource %s not found", path))
	default:
		return nil, nil, errors.ClientError(
			fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, path))
	}
}

// backoff returns the jittered exponential delay for the given attempt,
// never exceeding the cap.
func (t *Transport) backoff(attempt int) time.Duration {
	d := t.retryBase << uint(attempt-1)
	if d > t.retryCap {
		d = t.retryCap
	}
	// Full jitter keeps concurrent retries from thundering in lockstep.
	jittered := time.Duration(rand.Int63n(int64(d)) + int64(d)/2)
	if jittered > t.retryCap {
		jittered = t.retryCap
	}
	return jittered
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
