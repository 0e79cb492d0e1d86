package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/justestif/adorify/internal/metrics"
)

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// mockTokenStore implements TokenStore in memory.
type mockTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*oauth2.Token
	next   map[string]*time.Time
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{
		tokens: make(map[string]*oauth2.Token),
		next:   make(map[string]*time.Time),
	}
}

func (m *mockTokenStore) put(id string, expiry time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[id] = &oauth2.Token{AccessToken: "access-" + id, RefreshToken: "refresh-" + id, Expiry: expiry}
}

func (m *mockTokenStore) Token(_ context.Context, id string) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[id]
	if !ok {
		return nil, ErrNoSession
	}
	cp := *tok
	return &cp, nil
}

func (m *mockTokenStore) SaveToken(_ context.Context, id string, tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[id]; !ok {
		return ErrNoSession
	}
	m.tokens[id] = tok
	return nil
}

func (m *mockTokenStore) SetNextRefresh(_ context.Context, id string, next *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[id]; !ok {
		return ErrNoSession
	}
	if next == nil {
		delete(m.next, id)
		return nil
	}
	m.next[id] = next
	return nil
}

func (m *mockTokenStore) ListScheduled(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.next {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockTokenStore) nextRefresh(id string) *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next[id]
}

// mockRefresher issues tokens expiring at expiry, or two hours after epoch.
type mockRefresher struct {
	calls  atomic.Int32
	err    error
	expiry time.Time
}

func (m *mockRefresher) RefreshToken(_ context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	expiry := m.expiry
	if expiry.IsZero() {
		expiry = epoch.Add(2 * time.Hour)
	}
	return &oauth2.Token{AccessToken: tok.AccessToken + "+", Expiry: expiry}, nil
}

// fakeTimers records armed timers so tests can fire them by hand.
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) last() *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timers[len(f.timers)-1]
}

func (f *fakeTimers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func newTestScheduler(store TokenStore, refresher Refresher, opts ...SchedulerOption) (*Scheduler, *fakeTimers) {
	timers := &fakeTimers{}
	opts = append([]SchedulerOption{WithClock(func() time.Time { return epoch }, timers.AfterFunc)}, opts...)
	return NewScheduler(store, refresher, opts...), timers
}

func TestSchedule_ComputesNextRefreshFromExpiry(t *testing.T) {
	store := newMockTokenStore()
	store.put("s1", epoch.Add(time.Hour))
	sched, timers := newTestScheduler(store, &mockRefresher{})

	require.NoError(t, sched.Schedule(context.Background(), "s1"))

	want := epoch.Add(time.Hour - DefaultRefreshBuffer)
	require.NotNil(t, store.nextRefresh("s1"))
	assert.True(t, store.nextRefresh("s1").Equal(want))
	assert.Equal(t, time.Hour-DefaultRefreshBuffer, timers.last().delay)
	assert.True(t, sched.Scheduled("s1"))
}

func TestSchedule_ReplacingCancelsPreviousHandle(t *testing.T) {
	store := newMockTokenStore()
	store.put("s1", epoch.Add(time.Hour))
	refresher := &mockRefresher{}
	sched, timers := newTestScheduler(store, refresher)
	ctx := context.Background()

	require.NoError(t, sched.Schedule(ctx, "s1"))
	first := timers.last()

	store.put("s1", epoch.Add(3*time.Hour))
	require.NoError(t, sched.Schedule(ctx, "s1"))
	second := timers.last()

	assert.True(t, first.stopped.Load())
	assert.False(t, second.stopped.Load())
	assert.Equal(t, 3*time.Hour-DefaultRefreshBuffer, second.delay)

	// A stale timer that fires anyway does nothing.
	first.fn()
	assert.Zero(t, refresher.calls.Load())
}

func TestSchedule_PastExpiryFiresImmediately(t *testing.T) {
	store := newMockTokenStore()
	store.put("s1", epoch.Add(-time.Minute))
	sched, timers := newTestScheduler(store, &mockRefresher{})

	require.NoError(t, sched.Schedule(context.Background(), "s1"))
	assert.Equal(t, time.Duration(0), timers.last().delay)
}

func TestSchedule_UnknownSession(t *testing.T) {
	sched, _ := newTestScheduler(newMockTokenStore(), &mockRefresher{})

	err := sched.Schedule(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.False(t, sched.Scheduled("nope"))
}

func TestSchedule_TokenWithoutRefreshTokenIsNotScheduled(t *testing.T) {
	store := newMockTokenStore()
	store.tokens["s1"] = &oauth2.Token{AccessToken: "a", Expiry: epoch.Add(time.Hour)}
	sched, timers := newTestScheduler(store, &mockRefresher{})

	require.NoError(t, sched.Schedule(context.Background(), "s1"))
	assert.False(t, sched.Scheduled("s1"))
	assert.Zero(t, timers.count())
}

func TestFire_RefreshesSavesAndReschedules(t *testing.T) {
	store := newMockTokenStore()
	store.put("s1", epoch.Add(time.Hour))
	refresher := &mockRefresher{}
	m := metrics.New(prometheus.NewRegistry())
	sched, timers := newTestScheduler(store, refresher, WithMetrics(m))

	require.NoError(t, sched.Schedule(context.Background(), "s1"))
	timers.last().fn()

	assert.Equal(t, int32(1), refresher.calls.Load())
	tok, err := store.Token(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "access-s1+", tok.AccessToken)
	assert.Equal(t, "refresh-s1", tok.RefreshToken, "refresh token carried over")

	assert.Equal(t, 2, timers.count())
	assert.Equal(t, 2*time.Hour-DefaultRefreshBuffer, timers.last().delay)
	assert.True(t, store.nextRefresh("s1").Equal(epoch.Add(2*time.Hour-DefaultRefreshBuffer)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("ok")))
}

func TestFire_FailureRetries(t *testing.T) {
	store := newMockTokenStore()
	store.put("s1", epoch.Add(time.Hour))
	refresher := &mockRefresher{err: errors.New("invalid_grant")}
	m := metrics.New(prometheus.NewRegistry())
	sched, timers := newTestScheduler(store, refresher, WithMetrics(m), WithRetryInterval(10*time.Second))

	require.NoError(t, sched.Schedule(context.Background(), "s1"))
	timers.last().fn()

	assert.Equal(t, 2, timers.count())
	assert.Equal(t, 10*time.Second, timers.last().delay)
	assert.True(t, sched.Scheduled("s1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("error")))
}

// echoRefresher hands back the token it was given, as an oauth2 token source
// does for a token it still considers valid.
type echoRefresher struct {
	calls    atomic.Int32
	received []time.Time
	mu       sync.Mutex
}

func (e *echoRefresher) RefreshToken(_ context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	e.calls.Add(1)
	e.mu.Lock()
	e.received = append(e.received, tok.Expiry)
	e.mu.Unlock()
	return tok, nil
}

func TestFire_PassesExpiredCopyToRefresher(t *testing.T) {
	store := newMockTokenStore()
	store.put("s1", epoch.Add(31*time.Second))
	refresher := &echoRefresher{}
	sched, timers := newTestScheduler(store, refresher)

	require.NoError(t, sched.Schedule(context.Background(), "s1"))
	timers.last().fn()

	require.Len(t, refresher.received, 1)
	assert.True(t, refresher.received[0].Before(epoch), "refresher sees an already expired token")

	tok, err := store.Token(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, tok.Expiry.Equal(epoch.Add(31*time.Second)), "stored token keeps its own expiry")
}

func TestFire_UnchangedTokenRetriesLater(t *testing.T) {
	store := newMockTokenStore()
	store.put("s1", epoch.Add(31*time.Second))
	refresher := &echoRefresher{}
	m := metrics.New(prometheus.NewRegistry())
	sched, timers := newTestScheduler(store, refresher, WithMetrics(m))

	require.NoError(t, sched.Schedule(context.Background(), "s1"))
	timers.last().fn()

	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, 2, timers.count())
	assert.Equal(t, DefaultRetryInterval, timers.last().delay, "no immediate re-fire")
	assert.True(t, store.nextRefresh("s1").Equal(epoch.Add(31*time.Second-DefaultRefreshBuffer)),
		"schedule not rewritten")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("error")))
}

func TestScheduler_RealTimerWithUnchangedTokenDoesNotSpin(t *testing.T) {
	store := newMockTokenStore()
	store.put("s1", time.Now().Add(31*time.Second))
	refresher := &echoRefresher{}
	sched := NewScheduler(store, refresher)
	defer sched.Stop()

	require.NoError(t, sched.Schedule(context.Background(), "s1"))

	assert.Eventually(t, func() bool {
		return refresher.calls.Load() == 1
	}, 3*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestFire_DeletedSessionDropsTask(t *testing.T) {
	store := newMockTokenStore()
	store.put("s1", epoch.Add(time.Hour))
	refresher := &mockRefresher{}
	sched, timers := newTestScheduler(store, refresher)

	require.NoError(t, sched.Schedule(context.Background(), "s1"))
	store.mu.Lock()
	delete(store.tokens, "s1")
	store.mu.Unlock()

	timers.last().fn()

	assert.Zero(t, refresher.calls.Load())
	assert.False(t, sched.Scheduled("s1"))
	assert.Equal(t, 1, timers.count())
}

func TestCancel(t *testing.T) {
	store := newMockTokenStore()
	store.put("s1", epoch.Add(time.Hour))
	sched, timers := newTestScheduler(store, &mockRefresher{})
	ctx := context.Background()

	require.NoError(t, sched.Schedule(ctx, "s1"))
	require.NoError(t, sched.Cancel(ctx, "s1"))

	assert.True(t, timers.last().stopped.Load())
	assert.False(t, sched.Scheduled("s1"))
	assert.Nil(t, store.nextRefresh("s1"))

	// Cancelling a session that no longer exists is fine.
	assert.NoError(t, sched.Cancel(ctx, "gone"))
}

func TestResume(t *testing.T) {
	store := newMockTokenStore()
	store.put("s1", epoch.Add(time.Hour))
	store.put("s2", epoch.Add(2*time.Hour))
	store.put("s3", epoch.Add(3*time.Hour))
	ctx := context.Background()

	// A previous process scheduled s1 and s2.
	prev, _ := newTestScheduler(store, &mockRefresher{})
	require.NoError(t, prev.Schedule(ctx, "s1"))
	require.NoError(t, prev.Schedule(ctx, "s2"))
	prev.Stop()

	sched, timers := newTestScheduler(store, &mockRefresher{})
	n, err := sched.Resume(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, 2, timers.count())
	assert.True(t, sched.Scheduled("s1"))
	assert.True(t, sched.Scheduled("s2"))
	assert.False(t, sched.Scheduled("s3"))
}

func TestStop(t *testing.T) {
	store := newMockTokenStore()
	store.put("s1", epoch.Add(time.Hour))
	refresher := &mockRefresher{}
	sched, timers := newTestScheduler(store, refresher)
	ctx := context.Background()

	require.NoError(t, sched.Schedule(ctx, "s1"))
	armed := timers.last()
	sched.Stop()

	assert.True(t, armed.stopped.Load())
	assert.False(t, sched.Scheduled("s1"))
	assert.NotNil(t, store.nextRefresh("s1"), "persisted schedule kept for Resume")

	armed.fn()
	assert.Zero(t, refresher.calls.Load())

	require.NoError(t, sched.Schedule(ctx, "s1"))
	assert.False(t, sched.Scheduled("s1"))
}

func TestScheduler_RealTimer(t *testing.T) {
	store := newMockTokenStore()
	// Expiry within the buffer: the refresh fires right away.
	store.put("s1", time.Now().Add(time.Second))
	refresher := &mockRefresher{expiry: time.Now().Add(time.Hour)}
	sched := NewScheduler(store, refresher)
	defer sched.Stop()

	require.NoError(t, sched.Schedule(context.Background(), "s1"))

	assert.Eventually(t, func() bool {
		return refresher.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
