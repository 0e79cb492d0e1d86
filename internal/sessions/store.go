// Package sessions records study sessions and exposes them to the analytics
// layer as ordered, restartable sequences.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
)

// Common errors.
var (
	// ErrNotFound is returned when a study session ID is unknown.
	ErrNotFound = errors.New("study session not found")

	// ErrStorage is returned when persistence is unavailable or timed out.
	ErrStorage = errors.New("session storage unavailable")
)

// ValidationError reports a rejected input. Nothing is written when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// StudySession is one timed study attempt against a playlist.
type StudySession struct {
	ID              uuid.UUID
	Username        string
	PlaylistID      string
	PlannedLength   int // seconds
	CompletedAmount int // seconds, 0 until completion
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// Completed reports whether the completion event has been recorded.
func (s StudySession) Completed() bool {
	return s.CompletedAt != nil
}

// Reader is the read side of a Store. Every sequence is lazy and ordered by
// StartedAt ascending; ranging over it again re-reads the store.
type Reader interface {
	AllForUser(ctx context.Context, username string) iter.Seq2[StudySession, error]
	AllForUserSince(ctx context.Context, username string, since time.Time) iter.Seq2[StudySession, error]
	AllGlobalSince(ctx context.Context, since time.Time) iter.Seq2[StudySession, error]
}

// Store is the durable record of study sessions.
type Store interface {
	Reader

	// Create appends a new session with CompletedAmount = 0.
	Create(ctx context.Context, username string, plannedLength int, playlistID string) (uuid.UUID, error)

	// Get returns a session by ID or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (StudySession, error)

	// Complete atomically moves a session from not completed to completed.
	// applied is false when the session was already completed; the returned
	// session then carries the amount recorded by the first completion.
	Complete(ctx context.Context, id uuid.UUID, completedAmount int) (session StudySession, applied bool, err error)
}

// storageError tags err as a storage failure while keeping the cause.
func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Ensure both stores implement Store.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*DBStore)(nil)
)
