package sessions

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/adorify/internal/db"
)

// DefaultQueryTimeout bounds every storage call made by DBStore.
const DefaultQueryTimeout = 5 * time.Second

// DBStore keeps study sessions in PostgreSQL.
type DBStore struct {
	database *db.DB
	timeout  time.Duration
}

// NewDBStore creates a database-backed store. A non-positive timeout selects
// DefaultQueryTimeout.
func NewDBStore(database *db.DB, timeout time.Duration) *DBStore {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &DBStore{database: database, timeout: timeout}
}

// Create inserts a new session.
func (s *DBStore) Create(ctx context.Context, username string, plannedLength int, playlistID string) (uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := &db.StudySession{
		Username:      username,
		PlaylistID:    playlistID,
		PlannedLength: plannedLength,
	}
	if err := s.database.StudySessions().Create(ctx, row); err != nil {
		return uuid.Nil, storageError("creating study session", err)
	}
	return row.ID, nil
}

// Get retrieves a session by ID.
func (s *DBStore) Get(ctx context.Context, id uuid.UUID) (StudySession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row, err := s.database.StudySessions().Get(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return StudySession{}, ErrNotFound
	}
	if err != nil {
		return StudySession{}, storageError("reading study session", err)
	}
	return fromRow(*row), nil
}

// Complete performs the completion as a single conditional update.
func (s *DBStore) Complete(ctx context.Context, id uuid.UUID, completedAmount int) (StudySession, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row, applied, err := s.database.StudySessions().Complete(ctx, id, completedAmount)
	if errors.Is(err, db.ErrNotFound) {
		return StudySession{}, false, ErrNotFound
	}
	if err != nil {
		return StudySession{}, false, storageError("completing study session", err)
	}
	return fromRow(*row), applied, nil
}

// AllForUser returns every session of a user.
func (s *DBStore) AllForUser(ctx context.Context, username string) iter.Seq2[StudySession, error] {
	return s.seq(ctx, db.StudySessionFilter{Username: username})
}

// AllForUserSince returns the sessions of a user started at or after since.
func (s *DBStore) AllForUserSince(ctx context.Context, username string, since time.Time) iter.Seq2[StudySession, error] {
	return s.seq(ctx, db.StudySessionFilter{Username: username, Since: since})
}

// AllGlobalSince returns every session started at or after since.
func (s *DBStore) AllGlobalSince(ctx context.Context, since time.Time) iter.Seq2[StudySession, error] {
	return s.seq(ctx, db.StudySessionFilter{Since: since})
}

// seq runs one query per range, streaming rows as they arrive.
func (s *DBStore) seq(ctx context.Context, filter db.StudySessionFilter) iter.Seq2[StudySession, error] {
	return func(yield func(StudySession, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		stopped := false
		err := s.database.StudySessions().Scan(ctx, filter, func(row db.StudySession) bool {
			if !yield(fromRow(row), nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(StudySession{}, storageError("reading study sessions", err))
		}
	}
}

func fromRow(row db.StudySession) StudySession {
	return StudySession{
		ID:              row.ID,
		Username:        row.Username,
		PlaylistID:      row.PlaylistID,
		PlannedLength:   row.PlannedLength,
		CompletedAmount: row.CompletedAmount,
		StartedAt:       row.StartedAt,
		CompletedAt:     row.CompletedAt,
	}
}
