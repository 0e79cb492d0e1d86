package playlists

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/justestif/adorify/internal/logger"
	"github.com/justestif/adorify/internal/metrics"
	"github.com/justestif/adorify/internal/sessions"
)

// ErrStoreUnavailable wraps like/unlike persistence failures.
var ErrStoreUnavailable = errors.New("playlist store unavailable")

// Service decorates playlist ids for display and manages likes.
type Service struct {
	store       Store
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLookupConcurrency sets the worker count for metadata resolution.
func WithLookupConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMetrics counts dropped lookups.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a playlist service.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		concurrency: DefaultConcurrency,
		logger:      logger.WithComponent("playlists"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Describe resolves ids through fetcher and attaches the user's likes and
// the usage counters. Playlists that fail to resolve are left out. Likes and
// usage are best effort: on failure entries are returned without them.
func (s *Service) Describe(ctx context.Context, username string, fetcher Fetcher, ids []string) []Entry {
	if len(ids) == 0 {
		return []Entry{}
	}

	catalog := NewCatalog()
	catalog.Put(s.resolver(fetcher).Resolve(ctx, ids)...)
	s.loadLikes(ctx, catalog, username)

	usage, err := s.store.Usage(ctx, ids)
	if err != nil {
		s.logger.Warn("reading playlist usage failed", "error", err)
	} else {
		catalog.SetUsage(usage)
	}

	return catalog.Entries(ids)
}

// Liked returns the user's liked playlists, oldest like first.
func (s *Service) Liked(ctx context.Context, username string, fetcher Fetcher) ([]Entry, error) {
	ids, err := s.store.LikedIDs(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return []Entry{}, nil
	}

	catalog := NewCatalog()
	catalog.Put(s.resolver(fetcher).Resolve(ctx, ids)...)
	catalog.Like(ids...)
	if usage, err := s.store.Usage(ctx, ids); err == nil {
		catalog.SetUsage(usage)
	}
	return catalog.LikedEntries(ids), nil
}

// Like adds playlistID to the user's liked set.
func (s *Service) Like(ctx context.Context, username, playlistID string) error {
	if err := validateLike(username, playlistID); err != nil {
		return err
	}
	if err := s.store.Like(ctx, username, playlistID); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Unlike removes playlistID from the user's liked set.
func (s *Service) Unlike(ctx context.Context, username, playlistID string) error {
	if err := validateLike(username, playlistID); err != nil {
		return err
	}
	if err := s.store.Unlike(ctx, username, playlistID); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Service) resolver(fetcher Fetcher) *Resolver {
	return NewResolver(fetcher, WithConcurrency(s.concurrency), WithResolverMetrics(s.metrics))
}

func (s *Service) loadLikes(ctx context.Context, catalog *Catalog, username string) {
	liked, err := s.store.LikedIDs(ctx, username)
	if err != nil {
		s.logger.Warn("reading liked playlists failed", "username", username, "error", err)
		return
	}
	catalog.Like(liked...)
}

func validateLike(username, playlistID string) error {
	if strings.TrimSpace(username) == "" {
		return &sessions.ValidationError{Field: "username", Message: "must not be empty"}
	}
	if strings.TrimSpace(playlistID) == "" {
		return &sessions.ValidationError{Field: "playlistId", Message: "must not be empty"}
	}
	return nil
}
