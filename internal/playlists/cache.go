package playlists

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/justestif/adorify/internal/logger"
	"github.com/justestif/adorify/internal/metrics"
)

// DefaultCacheTTL is how long cached metadata is served before a refetch.
const DefaultCacheTTL = 6 * time.Hour

const cacheKeyPrefix = "adorify:playlist:"

// KV is the string cache the metadata cache is stored in.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	IsMiss(err error) bool
}

// MetadataCache keeps playlist metadata in a shared key/value cache and
// collapses concurrent lookups of the same playlist into one call.
type MetadataCache struct {
	kv      KV
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewMetadataCache creates a cache. A non-positive ttl selects DefaultCacheTTL.
func NewMetadataCache(kv KV, ttl time.Duration, m *metrics.Metrics) *MetadataCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MetadataCache{
		kv:      kv,
		ttl:     ttl,
		metrics: m,
		logger:  logger.WithComponent("playlist-cache"),
	}
}

// Wrap returns a Fetcher that consults the cache before next. Cache errors
// fall through to next; only successful lookups are cached.
func (c *MetadataCache) Wrap(next Fetcher) Fetcher {
	return &cachedFetcher{cache: c, next: next}
}

type cachedFetcher struct {
	cache *MetadataCache
	next  Fetcher
}

func (f *cachedFetcher) Playlist(ctx context.Context, id string) (*Metadata, error) {
	c := f.cache
	key := cacheKeyPrefix + id

	if meta, ok := c.get(ctx, key); ok {
		c.metrics.MetadataCache(true)
		return meta, nil
	}
	c.metrics.MetadataCache(false)

	ran := false
	v, err, _ := c.group.Do(id, func() (any, error) {
		ran = true
		return f.fetch(ctx, key, id)
	})
	if err != nil && !ran {
		// Another caller's failure may come from its token or its context,
		// so waiters retry with their own fetcher.
		v, err = f.fetch(ctx, key, id)
	}
	if err != nil {
		return nil, err
	}

	// Callers sharing a flight get their own copy.
	meta := *v.(*Metadata)
	return &meta, nil
}

func (f *cachedFetcher) fetch(ctx context.Context, key, id string) (any, error) {
	meta, err := f.next.Playlist(ctx, id)
	if err != nil {
		return nil, err
	}
	f.cache.set(ctx, key, meta)
	return meta, nil
}

func (c *MetadataCache) get(ctx context.Context, key string) (*Metadata, bool) {
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		if !c.kv.IsMiss(err) {
			c.logger.Warn("metadata cache read failed", "key", key, "error", err)
		}
		return nil, false
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		c.logger.Warn("discarding corrupt cache entry", "key", key, "error", err)
		return nil, false
	}
	return &meta, true
}

func (c *MetadataCache) set(ctx context.Context, key string, meta *Metadata) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := c.kv.Set(ctx, key, string(raw), c.ttl); err != nil {
		c.logger.Warn("metadata cache write failed", "key", key, "error", err)
	}
}
