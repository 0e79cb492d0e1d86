package sessions

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable clock for deterministic StartedAt values.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func collect(t *testing.T, seq func(func(StudySession, error) bool)) []StudySession {
	t.Helper()
	var out []StudySession
	for s, err := range seq {
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(WithMemoryClock(clock.Now))
	ctx := context.Background()

	id, err := store.Create(ctx, "ana", 1800, "p1")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ana", got.Username)
	assert.Equal(t, "p1", got.PlaylistID)
	assert.Equal(t, 1800, got.PlannedLength)
	assert.Equal(t, 0, got.CompletedAmount)
	assert.False(t, got.Completed())
	assert.True(t, got.StartedAt.Equal(clock.Now()))
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_CompleteOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id, err := store.Create(ctx, "ana", 1800, "p1")
	require.NoError(t, err)

	session, applied, err := store.Complete(ctx, id, 1700)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1700, session.CompletedAmount)

	session, applied, err = store.Complete(ctx, id, 900)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 1700, session.CompletedAmount, "first completion wins")
}

func TestMemoryStore_CompleteUnknown(t *testing.T) {
	store := NewMemoryStore()

	_, _, err := store.Complete(context.Background(), uuid.New(), 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ConcurrentCompletionHasOneWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id, err := store.Create(ctx, "ana", 1800, "p1")
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(amount int) {
			defer wg.Done()
			_, applied, err := store.Complete(ctx, id, amount)
			if err == nil && applied {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Positive(t, got.CompletedAmount)
}

func TestMemoryStore_SequencesAreOrderedAndFiltered(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{}
	store := NewMemoryStore(WithMemoryClock(clock.Now))
	ctx := context.Background()

	// Insert out of chronological order.
	for _, tc := range []struct {
		user   string
		offset time.Duration
	}{
		{"ana", 3 * time.Hour},
		{"bo", 2 * time.Hour},
		{"ana", 1 * time.Hour},
		{"ana", 5 * time.Hour},
	} {
		clock.Set(base.Add(tc.offset))
		_, err := store.Create(ctx, tc.user, 600, "p1")
		require.NoError(t, err)
	}

	all := collect(t, store.AllForUser(ctx, "ana"))
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].StartedAt.Before(all[i].StartedAt))
	}

	since := collect(t, store.AllForUserSince(ctx, "ana", base.Add(3*time.Hour)))
	assert.Len(t, since, 2, "since is inclusive")

	global := collect(t, store.AllGlobalSince(ctx, time.Time{}))
	assert.Len(t, global, 4)
	assert.Equal(t, "ana", global[0].Username)
	assert.Equal(t, "bo", global[1].Username)
}

func TestMemoryStore_SequenceIsRestartable(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, err := store.Create(ctx, "ana", 600, "p1")
	require.NoError(t, err)

	seq := store.AllForUser(ctx, "ana")
	assert.Len(t, collect(t, seq), 1)

	_, err = store.Create(ctx, "ana", 600, "p2")
	require.NoError(t, err)
	assert.Len(t, collect(t, seq), 2, "ranging again re-reads the store")
}

func TestMemoryStore_SequenceEarlyStop(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for range 5 {
		_, err := store.Create(ctx, "ana", 600, "p1")
		require.NoError(t, err)
	}

	n := 0
	for range store.AllForUser(ctx, "ana") {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestMemoryStore_CancelledContextYieldsStorageError(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range store.AllGlobalSince(ctx, time.Time{}) {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, ErrStorage)

	_, err := store.Create(ctx, "ana", 600, "p1")
	assert.ErrorIs(t, err, ErrStorage)
}
