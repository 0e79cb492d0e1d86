package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/justestif/adorify/internal/logger"
	"github.com/justestif/adorify/internal/metrics"
)

const (
	// DefaultRefreshBuffer is how long before expiry a token is refreshed.
	DefaultRefreshBuffer = 30 * time.Second

	// DefaultRetryInterval is the delay before retrying a failed refresh.
	DefaultRetryInterval = time.Minute

	refreshTimeout = 30 * time.Second
)

// errNotRenewed is returned when a refresh hands back a token that expires no
// later than the one it replaces.
var errNotRenewed = errors.New("refreshed token expiry did not advance")

// expiredAt marks the copy passed to the Refresher as expired. oauth2 token
// sources return the cached token unchanged while it is still valid.
var expiredAt = time.Unix(0, 0)

// TokenStore is the single authority for session tokens and their refresh
// schedule. Methods return ErrNoSession once a session is gone.
type TokenStore interface {
	Token(ctx context.Context, sessionID string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, sessionID string, token *oauth2.Token) error
	SetNextRefresh(ctx context.Context, sessionID string, next *time.Time) error
	ListScheduled(ctx context.Context) ([]string, error)
}

// Refresher exchanges a refresh token for a new access token.
// *spotifyauth.Authenticator satisfies it.
type Refresher interface {
	RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)
}

// Timer is a cancellable scheduled call.
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Scheduler keeps one refresh task per session. Each task's fire time is
// derived from the token expiry read fresh from the TokenStore and is
// persisted there, so tasks survive restarts through Resume. Scheduling a
// session again replaces its task handle, which cancels the old one.
type Scheduler struct {
	store     TokenStore
	refresher Refresher
	buffer    time.Duration
	retry     time.Duration
	now       func() time.Time
	afterFunc AfterFunc
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu      sync.Mutex
	tasks   map[string]*task
	stopped bool
}

type task struct {
	timer Timer
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithRefreshBuffer sets how long before expiry refreshes happen.
func WithRefreshBuffer(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.buffer = d
		}
	}
}

// WithRetryInterval sets the delay before retrying a failed refresh.
func WithRetryInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.retry = d
		}
	}
}

// WithClock sets the clock and timer source.
func WithClock(now func() time.Time, afterFunc AfterFunc) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
		if afterFunc != nil {
			s.afterFunc = afterFunc
		}
	}
}

// WithMetrics counts refresh outcomes.
func WithMetrics(m *metrics.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// NewScheduler creates a Scheduler.
func NewScheduler(store TokenStore, refresher Refresher, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:     store,
		refresher: refresher,
		buffer:    DefaultRefreshBuffer,
		retry:     DefaultRetryInterval,
		now:       time.Now,
		afterFunc: realAfterFunc,
		logger:    logger.WithComponent("token-scheduler"),
		tasks:     make(map[string]*task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule (re)arms the refresh task for a session from its current expiry.
// A token without expiry or refresh token needs no task and clears any
// existing one.
func (s *Scheduler) Schedule(ctx context.Context, sessionID string) error {
	token, err := s.store.Token(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			s.drop(sessionID)
		}
		return fmt.Errorf("reading token: %w", err)
	}

	if token.Expiry.IsZero() || token.RefreshToken == "" {
		return s.Cancel(ctx, sessionID)
	}

	next := token.Expiry.Add(-s.buffer)
	if err := s.store.SetNextRefresh(ctx, sessionID, &next); err != nil {
		return fmt.Errorf("persisting next refresh: %w", err)
	}

	s.arm(sessionID, next.Sub(s.now()))
	return nil
}

// Cancel removes a session's task and clears its persisted schedule.
func (s *Scheduler) Cancel(ctx context.Context, sessionID string) error {
	s.drop(sessionID)

	err := s.store.SetNextRefresh(ctx, sessionID, nil)
	if err != nil && !errors.Is(err, ErrNoSession) {
		return fmt.Errorf("clearing next refresh: %w", err)
	}
	return nil
}

// Resume re-arms every persisted task. It returns the number of sessions
// scheduled.
func (s *Scheduler) Resume(ctx context.Context) (int, error) {
	ids, err := s.store.ListScheduled(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing scheduled sessions: %w", err)
	}

	n := 0
	for _, id := range ids {
		if err := s.Schedule(ctx, id); err != nil {
			s.logger.Warn("resuming refresh task failed", "session_id", id, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// Stop cancels every task and prevents new ones. Persisted schedules are kept
// for the next Resume.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, id)
	}
}

// Scheduled reports whether a session currently has an armed task.
func (s *Scheduler) Scheduled(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[sessionID]
	return ok
}

func (s *Scheduler) arm(sessionID string, delay time.Duration) {
	delay = max(delay, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	t := &task{}
	if old, ok := s.tasks[sessionID]; ok {
		old.timer.Stop()
	}
	s.tasks[sessionID] = t
	t.timer = s.afterFunc(delay, func() { s.fire(sessionID, t) })
}

func (s *Scheduler) drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[sessionID]; ok {
		t.timer.Stop()
		delete(s.tasks, sessionID)
	}
}

// current reports whether t is still the live task for the session. A timer
// that fired after being replaced must do nothing.
func (s *Scheduler) current(sessionID string, t *task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && s.tasks[sessionID] == t
}

func (s *Scheduler) fire(sessionID string, t *task) {
	if !s.current(sessionID, t) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := s.refresh(ctx, sessionID); err != nil {
		if errors.Is(err, ErrNoSession) {
			s.drop(sessionID)
			return
		}
		s.metrics.TokenRefreshed("error")
		s.logger.Warn("token refresh failed, will retry", "session_id", sessionID, "retry_in", s.retry, "error", err)
		if s.current(sessionID, t) {
			s.arm(sessionID, s.retry)
		}
		return
	}

	s.metrics.TokenRefreshed("ok")
	if err := s.Schedule(ctx, sessionID); err != nil {
		s.logger.Warn("rescheduling token refresh failed", "session_id", sessionID, "error", err)
	}
}

func (s *Scheduler) refresh(ctx context.Context, sessionID string) error {
	token, err := s.store.Token(ctx, sessionID)
	if err != nil {
		return err
	}

	stale := *token
	stale.Expiry = expiredAt

	fresh, err := s.refresher.RefreshToken(ctx, &stale)
	if err != nil {
		return fmt.Errorf("refreshing token: %w", err)
	}
	if !fresh.Expiry.After(token.Expiry) {
		return fmt.Errorf("%w: expiry %s", errNotRenewed, fresh.Expiry)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = token.RefreshToken
	}

	if err := s.store.SaveToken(ctx, sessionID, fresh); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	s.logger.Debug("token refreshed", "session_id", sessionID, "expiry", fresh.Expiry)
	return nil
}
