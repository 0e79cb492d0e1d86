package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StudySessionRepository handles study session database operations.
type StudySessionRepository struct {
	pool *pgxpool.Pool
}

// StudySessionFilter narrows a streamed read. Zero values mean "no constraint".
type StudySessionFilter struct {
	Username string
	Since    time.Time
}

// Create inserts a new, not yet completed study session.
// ID and StartedAt are filled in when unset.
func (r *StudySessionRepository) Create(ctx context.Context, s *StudySession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	query := `
		INSERT INTO study_sessions (id, username, playlist_id, planned_length, completed_amount, started_at)
		VALUES ($1, $2, $3, $4, 0, COALESCE($5, NOW()))
		RETURNING started_at
	`
	var startedAt *time.Time
	if !s.StartedAt.IsZero() {
		startedAt = &s.StartedAt
	}
	err := r.pool.QueryRow(ctx, query,
		s.ID,
		s.Username,
		s.PlaylistID,
		s.PlannedLength,
		startedAt,
	).Scan(&s.StartedAt)
	if err != nil {
		return fmt.Errorf("inserting study session: %w", err)
	}
	s.CompletedAmount = 0
	s.CompletedAt = nil
	return nil
}

// Get retrieves a study session by ID.
func (r *StudySessionRepository) Get(ctx context.Context, id uuid.UUID) (*StudySession, error) {
	query := `
		SELECT id, username, playlist_id, planned_length, completed_amount, started_at, completed_at
		FROM study_sessions
		WHERE id = $1
	`
	s, err := scanStudySession(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying study session: %w", err)
	}
	return &s, nil
}

// Complete sets the completed amount if and only if the session has not been
// completed yet. The returned session reflects the stored row; applied reports
// whether this call performed the transition.
func (r *StudySessionRepository) Complete(ctx context.Context, id uuid.UUID, completedAmount int) (*StudySession, bool, error) {
	query := `
		UPDATE study_sessions
		SET completed_amount = $2, completed_at = NOW()
		WHERE id = $1 AND completed_at IS NULL
		RETURNING id, username, playlist_id, planned_length, completed_amount, started_at, completed_at
	`
	s, err := scanStudySession(r.pool.QueryRow(ctx, query, id, completedAmount))
	if err == nil {
		return &s, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("completing study session: %w", err)
	}

	// Either unknown or already completed.
	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Scan streams sessions matching the filter, ordered by started_at ascending,
// until yield returns false.
func (r *StudySessionRepository) Scan(ctx context.Context, f StudySessionFilter, yield func(StudySession) bool) error {
	query := `
		SELECT id, username, playlist_id, planned_length, completed_amount, started_at, completed_at
		FROM study_sessions
		WHERE ($1 = '' OR username = $1)
		  AND started_at >= $2
		ORDER BY started_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, f.Username, f.Since)
	if err != nil {
		return fmt.Errorf("querying study sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanStudySession(rows)
		if err != nil {
			return fmt.Errorf("scanning study session: %w", err)
		}
		if !yield(s) {
			return nil
		}
	}
	return rows.Err()
}

func scanStudySession(row pgx.Row) (StudySession, error) {
	var s StudySession
	err := row.Scan(
		&s.ID,
		&s.Username,
		&s.PlaylistID,
		&s.PlannedLength,
		&s.CompletedAmount,
		&s.StartedAt,
		&s.CompletedAt,
	)
	return s, err
}
