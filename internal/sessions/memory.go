package sessions

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps study sessions in memory (for development/testing).
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*StudySession
	now      func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock sets the clock used to stamp StartedAt and CompletedAt.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[uuid.UUID]*StudySession),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create appends a new session.
func (s *MemoryStore) Create(ctx context.Context, username string, plannedLength int, playlistID string) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, storageError("creating study session", err)
	}

	session := &StudySession{
		ID:            uuid.New(),
		Username:      username,
		PlaylistID:    playlistID,
		PlannedLength: plannedLength,
		StartedAt:     s.now(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session.ID, nil
}

// Get retrieves a session by ID.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (StudySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return StudySession{}, ErrNotFound
	}
	return *session, nil
}

// Complete records the completion under the write lock, so concurrent
// completions of the same ID have exactly one winner.
func (s *MemoryStore) Complete(_ context.Context, id uuid.UUID, completedAmount int) (StudySession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return StudySession{}, false, ErrNotFound
	}
	if session.Completed() {
		return *session, false, nil
	}

	completedAt := s.now()
	session.CompletedAmount = completedAmount
	session.CompletedAt = &completedAt
	return *session, true, nil
}

// AllForUser returns every session of a user.
func (s *MemoryStore) AllForUser(ctx context.Context, username string) iter.Seq2[StudySession, error] {
	return s.seq(ctx, func(ss *StudySession) bool {
		return ss.Username == username
	})
}

// AllForUserSince returns the sessions of a user started at or after since.
func (s *MemoryStore) AllForUserSince(ctx context.Context, username string, since time.Time) iter.Seq2[StudySession, error] {
	return s.seq(ctx, func(ss *StudySession) bool {
		return ss.Username == username && !ss.StartedAt.Before(since)
	})
}

// AllGlobalSince returns every session started at or after since.
func (s *MemoryStore) AllGlobalSince(ctx context.Context, since time.Time) iter.Seq2[StudySession, error] {
	return s.seq(ctx, func(ss *StudySession) bool {
		return !ss.StartedAt.Before(since)
	})
}

// seq snapshots the matching sessions each time it is ranged over.
func (s *MemoryStore) seq(ctx context.Context, match func(*StudySession) bool) iter.Seq2[StudySession, error] {
	return func(yield func(StudySession, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(StudySession{}, storageError("reading study sessions", err))
			return
		}

		s.mu.RLock()
		snapshot := make([]StudySession, 0, len(s.sessions))
		for _, ss := range s.sessions {
			if match(ss) {
				snapshot = append(snapshot, *ss)
			}
		}
		s.mu.RUnlock()

		slices.SortFunc(snapshot, func(a, b StudySession) int {
			if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.ID.String(), b.ID.String())
		})

		for _, ss := range snapshot {
			if !yield(ss, nil) {
				return
			}
		}
	}
}
