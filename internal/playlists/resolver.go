package playlists

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/justestif/adorify/internal/logger"
	"github.com/justestif/adorify/internal/metrics"
)

// DefaultConcurrency is the number of concurrent metadata lookups.
const DefaultConcurrency = 5

// Resolver resolves batches of playlist ids with a bounded worker pool.
type Resolver struct {
	fetcher     Fetcher
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithConcurrency sets the number of concurrent lookups.
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithResolverMetrics counts dropped lookups.
func WithResolverMetrics(m *metrics.Metrics) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver creates a Resolver.
func NewResolver(fetcher Fetcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
		logger:      logger.WithComponent("playlist-resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks up every id concurrently. The result keeps input order and
// leaves out playlists whose lookup failed; a failed lookup never fails the
// batch.
func (r *Resolver) Resolve(ctx context.Context, ids []string) []Metadata {
	if len(ids) == 0 {
		return []Metadata{}
	}

	found := make([]*Metadata, len(ids))

	type workItem struct {
		index int
		id    string
	}
	workCh := make(chan workItem, len(ids))
	for i, id := range ids {
		workCh <- workItem{index: i, id: id}
	}
	close(workCh)

	var wg sync.WaitGroup
	for range min(r.concurrency, len(ids)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workCh {
				if ctx.Err() != nil {
					r.drop(work.id, ctx.Err())
					continue
				}

				meta, err := r.fetcher.Playlist(ctx, work.id)
				if err != nil {
					r.drop(work.id, err)
					continue
				}
				found[work.index] = meta
			}
		}()
	}
	wg.Wait()

	result := make([]Metadata, 0, len(ids))
	for _, meta := range found {
		if meta != nil {
			result = append(result, *meta)
		}
	}
	return result
}

func (r *Resolver) drop(id string, err error) {
	reason := "unavailable"
	if errors.Is(err, ErrNotFound) {
		reason = "not_found"
	}
	r.logger.Warn("dropping playlist from results", "playlist_id", id, "reason", reason, "error", err)
	r.metrics.MetadataLookupFailed(reason)
}
