// Package usage maintains the denormalized per-playlist usage counters.
// Counter updates are best effort: failures are logged and absorbed.
package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/justestif/adorify/internal/logger"
	"github.com/justestif/adorify/internal/metrics"
)

// DefaultTimeout bounds a single counter update.
const DefaultTimeout = 3 * time.Second

// Counters is the playlist-usage collaborator that owns the counter storage.
type Counters interface {
	IncrementUsed(ctx context.Context, playlistID string) error
	IncrementCompleted(ctx context.Context, playlistID string, delta int) error
}

// Counter forwards session events to the playlist usage counters.
type Counter struct {
	counters Counters
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Counter.
type Option func(*Counter)

// WithTimeout sets the per-update timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Counter) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMetrics records absorbed failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Counter) {
		c.metrics = m
	}
}

// New creates a Counter.
func New(counters Counters, opts ...Option) *Counter {
	c := &Counter{
		counters: counters,
		timeout:  DefaultTimeout,
		logger:   logger.WithComponent("usage-counter"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnSessionStart increments the playlist's used count by one.
func (c *Counter) OnSessionStart(ctx context.Context, playlistID string) {
	ctx, cancel := c.detach(ctx)
	defer cancel()

	if err := c.counters.IncrementUsed(ctx, playlistID); err != nil {
		c.logger.Warn("used count update failed", "playlist_id", playlistID, "error", err)
		c.metrics.UsageCounterFailed("used")
	}
}

// OnSessionComplete increments the playlist's completed count by delta.
func (c *Counter) OnSessionComplete(ctx context.Context, playlistID string, delta int) {
	if delta <= 0 {
		return
	}
	ctx, cancel := c.detach(ctx)
	defer cancel()

	if err := c.counters.IncrementCompleted(ctx, playlistID, delta); err != nil {
		c.logger.Warn("completed count update failed", "playlist_id", playlistID, "delta", delta, "error", err)
		c.metrics.UsageCounterFailed("completed")
	}
}

// detach keeps request values but not cancellation: the session write has
// already committed, so a client disconnect must not drop the counter update.
func (c *Counter) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
}
