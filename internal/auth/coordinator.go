// Package auth coordinates access-token refresh. Many requests can fail with
// 401 at once when a token expires; the Coordinator makes sure only one of
// them exchanges the refresh token while the rest wait for its outcome.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/models"
)

// DefaultTimeout bounds how long a single caller waits for a refresh.
const DefaultTimeout = 30 * time.Second

// Refresher performs the refresh-token exchange.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
}

// Metrics are the coordinator's counters.
type Metrics struct {
	Refreshes     int64     `json:"refreshes"`
	Deduplicated  int64     `json:"deduplicated"`
	Failures      int64     `json:"failures"`
	LastRefreshAt time.Time `json:"last_refresh_at,omitzero"`
}

// call is one in-flight refresh. pair and err are written before done is
// closed and read only after.
type call struct {
	done chan struct{}
	pair models.TokenPair
	err  error
}

// Coordinator is a single-flight wrapper around a Refresher.
type Coordinator struct {
	refresher Refresher
	creds     Credentials
	policy    CleanupPolicy
	timeout   time.Duration
	exchange  time.Duration
	log       *slog.Logger
	onReauth  func(CleanupResult)

	mu       sync.Mutex
	inflight *call
	metrics  Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the per-caller wait timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithExchangeTimeout bounds the refresh-token exchange itself,
// independently of how long any one caller waits.
func WithExchangeTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.exchange = d
		}
	}
}

// WithCleanupPolicy sets how credentials are cleared when the refresh
// token is rejected.
func WithCleanupPolicy(p CleanupPolicy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// OnReauthRequired registers fn to run after credentials were cleared
// because the server rejected the refresh token.
func OnReauthRequired(fn func(CleanupResult)) Option {
	return func(c *Coordinator) { c.onReauth = fn }
}

// NewCoordinator creates a Coordinator. creds may be nil, in which case
// nothing is persisted or cleared.
func NewCoordinator(r Refresher, creds Credentials, opts ...Option) *Coordinator {
	c := &Coordinator{
		refresher: r,
		creds:     creds,
		timeout:   DefaultTimeout,
		exchange:  2 * DefaultTimeout,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Refresh returns a new token pair for refreshToken. If a refresh is
// already running, the caller joins it instead of starting another. Every
// caller of the same refresh gets the same pair or the same error. A caller
// that waits longer than the timeout gets apperr.ErrTimeout; the refresh
// itself keeps running for the others.
func (c *Coordinator) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	c.mu.Lock()
	cl := c.inflight
	if cl != nil {
		c.metrics.Deduplicated++
	} else {
		cl = &call{done: make(chan struct{})}
		c.inflight = cl
		go c.run(cl, refreshToken)
	}
	c.mu.Unlock()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-cl.done:
		return cl.pair, cl.err
	case <-timer.C:
		return models.TokenPair{}, fmt.Errorf("auth: refresh: waited %s: %w", c.timeout, apperr.ErrTimeout)
	case <-ctx.Done():
		return models.TokenPair{}, fmt.Errorf("auth: refresh: %w", ctx.Err())
	}
}

// run performs the exchange detached from any single caller's context so
// that one caller giving up does not fail the others.
func (c *Coordinator) run(cl *call, refreshToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.exchange)
	defer cancel()

	pair, err := c.refresher.Refresh(ctx, refreshToken)
	if err == nil && c.creds != nil {
		if serr := SavePair(c.creds, pair); serr != nil {
			c.log.Error("auth: persist refreshed tokens", "error", serr)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperr.ErrTimeout) {
		err = fmt.Errorf("auth: refresh: %w: %w", apperr.ErrTimeout, err)
	}
	if apperr.IsAuth(err) {
		c.clearCredentials()
	}

	c.mu.Lock()
	if err == nil {
		c.metrics.Refreshes++
		c.metrics.LastRefreshAt = time.Now()
	} else {
		c.metrics.Failures++
	}
	c.inflight = nil
	c.mu.Unlock()

	cl.pair, cl.err = pair, err
	close(cl.done)

	if err != nil {
		c.log.Warn("auth: token refresh failed", "error", err, "kind", apperr.Classify(err))
	} else {
		c.log.Info("auth: token refreshed", "expires_at", pair.ExpiresAt())
	}
}

func (c *Coordinator) clearCredentials() {
	if c.creds == nil {
		return
	}
	res := ClearAll(c.creds, c.policy)
	if res.Critical {
		c.log.Error("auth: credential cleanup failed", "failed", res.Failed)
	} else if len(res.Failed) > 0 {
		c.log.Warn("auth: credential cleanup partially failed", "failed", res.Failed)
	}
	if c.onReauth != nil {
		c.onReauth(res)
	}
}

// InFlight reports whether a refresh is currently running.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

// Metrics returns a snapshot of the counters.
func (c *Coordinator) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}
