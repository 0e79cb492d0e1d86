package stats

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/justestif/adorify/internal/logger"
	"github.com/justestif/adorify/internal/metrics"
	"github.com/justestif/adorify/internal/sessions"
)

// MostPlayed holds the most-played rankings for both windows.
type MostPlayed struct {
	Week  []PlaylistTime
	Month []PlaylistTime
}

// Stats is a user's analytics snapshot.
type Stats struct {
	Totals
	MostPlayed         MostPlayed
	StudyTimeHistogram []int
}

// Service answers stats and leaderboard queries.
type Service struct {
	reader          sessions.Reader
	now             func() time.Time
	loc             *time.Location
	topUsers        int
	mostPlayedLimit int
	metrics         *metrics.Metrics
	logger          *slog.Logger

	aggregator *Aggregator
	histogram  *HistogramBuilder
	ranker     *Ranker
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used as query time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the time zone whose calendar days the histogram uses.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithTopUsers sets the leaderboard size.
func WithTopUsers(n int) Option {
	return func(s *Service) {
		s.topUsers = n
	}
}

// WithMostPlayedLimit caps each most-played list; 0 means unlimited.
func WithMostPlayedLimit(n int) Option {
	return func(s *Service) {
		s.mostPlayedLimit = n
	}
}

// WithMetrics records query latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a stats service over reader.
func NewService(reader sessions.Reader, opts ...Option) *Service {
	s := &Service{
		reader:   reader,
		now:      time.Now,
		loc:      time.UTC,
		topUsers: DefaultTopUsers,
		logger:   logger.WithComponent("stats"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.aggregator = NewAggregator(reader, s.now)
	s.histogram = NewHistogramBuilder(reader, s.now, s.loc)
	s.ranker = NewRanker(reader, s.topUsers)
	return s
}

// GetStats computes totals, both most-played windows and the histogram.
// The four reads run concurrently and each is independent of the others.
func (s *Service) GetStats(ctx context.Context, username string) (Stats, error) {
	defer s.metrics.ObserveQuery("stats", time.Now())

	var out Stats
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		totals, err := s.aggregator.Totals(ctx, username)
		out.Totals = totals
		return err
	})
	g.Go(func() error {
		week, err := s.aggregator.MostPlayed(ctx, username, Week, s.mostPlayedLimit)
		out.MostPlayed.Week = week
		return err
	})
	g.Go(func() error {
		month, err := s.aggregator.MostPlayed(ctx, username, Month, s.mostPlayedLimit)
		out.MostPlayed.Month = month
		return err
	})
	g.Go(func() error {
		hist, err := s.histogram.StudyTime(ctx, username)
		out.StudyTimeHistogram = hist
		return err
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("stats query failed", "username", username, "error", err)
		return Stats{}, err
	}
	return out, nil
}

// GetLeaderboard ranks every user and reports where username stands.
func (s *Service) GetLeaderboard(ctx context.Context, username string) (Leaderboard, error) {
	defer s.metrics.ObserveQuery("leaderboard", time.Now())

	board, err := s.ranker.Rank(ctx, username)
	if err != nil {
		s.logger.Error("leaderboard query failed", "username", username, "error", err)
		return Leaderboard{}, err
	}
	return board, nil
}
