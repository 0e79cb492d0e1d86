package sessions

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/justestif/adorify/internal/logger"
	"github.com/justestif/adorify/internal/metrics"
)

// UsageRecorder receives best-effort playlist usage events.
type UsageRecorder interface {
	OnSessionStart(ctx context.Context, playlistID string)
	OnSessionComplete(ctx context.Context, playlistID string, delta int)
}

// Service records session starts and completions.
type Service struct {
	store   Store
	usage   UsageRecorder
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records session events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a session service. usage may be nil.
func NewService(store Store, usage UsageRecorder, opts ...Option) *Service {
	s := &Service{
		store:  store,
		usage:  usage,
		logger: logger.WithComponent("sessions"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordStart validates and stores a new session, then bumps the playlist's
// used count. Only the session write can fail the call.
func (s *Service) RecordStart(ctx context.Context, username string, plannedLength int, playlistID string) (uuid.UUID, error) {
	if err := validateStart(username, plannedLength, playlistID); err != nil {
		return uuid.Nil, err
	}

	id, err := s.store.Create(ctx, username, plannedLength, playlistID)
	if err != nil {
		return uuid.Nil, err
	}
	s.metrics.SessionStarted()

	if s.usage != nil {
		s.usage.OnSessionStart(ctx, playlistID)
	}
	return id, nil
}

// RecordCompletion completes a session owned by username. Completing an
// already completed session is a successful no-op reported as applied=false;
// usage is only counted for the call that applied.
//
// The playlist counted is the one stored on the session. playlistID is the
// caller's view of it and only used to flag disagreement.
func (s *Service) RecordCompletion(ctx context.Context, username string, id uuid.UUID, completedAmount int, playlistID string) (bool, error) {
	if strings.TrimSpace(username) == "" {
		return false, &ValidationError{Field: "username", Message: "must not be empty"}
	}
	if completedAmount < 0 {
		return false, &ValidationError{Field: "completedAmount", Message: "must not be negative"}
	}

	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if existing.Username != username {
		// Other users' sessions are indistinguishable from unknown ones.
		return false, ErrNotFound
	}

	session, applied, err := s.store.Complete(ctx, id, completedAmount)
	if err != nil {
		return false, err
	}
	s.metrics.SessionCompleted(applied)

	if !applied {
		s.logger.Debug("duplicate completion ignored",
			"session_id", id,
			"recorded_amount", session.CompletedAmount,
			"requested_amount", completedAmount,
		)
		return false, nil
	}

	if playlistID != "" && playlistID != session.PlaylistID {
		s.logger.Warn("completion playlist differs from session playlist",
			"session_id", id,
			"session_playlist_id", session.PlaylistID,
			"request_playlist_id", playlistID,
		)
	}
	if s.usage != nil {
		s.usage.OnSessionComplete(ctx, session.PlaylistID, 1)
	}
	return true, nil
}

func validateStart(username string, plannedLength int, playlistID string) error {
	if strings.TrimSpace(username) == "" {
		return &ValidationError{Field: "username", Message: "must not be empty"}
	}
	if strings.TrimSpace(playlistID) == "" {
		return &ValidationError{Field: "playlistId", Message: "must not be empty"}
	}
	if plannedLength <= 0 {
		return &ValidationError{Field: "plannedLength", Message: "must be positive"}
	}
	return nil
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
