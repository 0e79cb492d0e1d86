// Package metrics defines the Prometheus collectors used by Adorify and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	SessionsStarted       prometheus.Counter
	SessionsCompleted     prometheus.Counter
	DuplicateCompletions  prometheus.Counter
	UsageCounterFailures  *prometheus.CounterVec
	MetadataLookupFailure *prometheus.CounterVec
	MetadataCacheHits     prometheus.Counter
	MetadataCacheMisses   prometheus.Counter
	TokenRefreshes        *prometheus.CounterVec
	QueryDuration         *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adorify_sessions_started_total",
			Help: "Study sessions recorded as started.",
		}),
		SessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adorify_sessions_completed_total",
			Help: "Study sessions whose completion was applied.",
		}),
		DuplicateCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adorify_sessions_duplicate_completions_total",
			Help: "Completion calls ignored because the session was already completed.",
		}),
		UsageCounterFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adorify_usage_counter_failures_total",
			Help: "Playlist usage counter updates that failed and were absorbed.",
		}, []string{"counter"}),
		MetadataLookupFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adorify_metadata_lookup_failures_total",
			Help: "Playlist metadata lookups dropped from results, by reason.",
		}, []string{"reason"}),
		MetadataCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adorify_metadata_cache_hits_total",
			Help: "Playlist metadata served from cache.",
		}),
		MetadataCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adorify_metadata_cache_misses_total",
			Help: "Playlist metadata cache misses.",
		}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adorify_token_refreshes_total",
			Help: "Scheduled OAuth token refreshes, by outcome.",
		}, []string{"outcome"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adorify_query_duration_seconds",
			Help:    "Latency of analytics queries.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"query"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.SessionsStarted,
		m.SessionsCompleted,
		m.DuplicateCompletions,
		m.UsageCounterFailures,
		m.MetadataLookupFailure,
		m.MetadataCacheHits,
		m.MetadataCacheMisses,
		m.TokenRefreshes,
		m.QueryDuration,
	)
	return m
}

// Handler returns the scrape handler for the registry the metrics live in.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// SessionStarted counts a recorded session start.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

// SessionCompleted counts a completion; duplicate completions are tracked separately.
func (m *Metrics) SessionCompleted(applied bool) {
	if m == nil {
		return
	}
	if applied {
		m.SessionsCompleted.Inc()
		return
	}
	m.DuplicateCompletions.Inc()
}

// UsageCounterFailed counts an absorbed usage counter failure.
func (m *Metrics) UsageCounterFailed(counter string) {
	if m == nil {
		return
	}
	m.UsageCounterFailures.WithLabelValues(counter).Inc()
}

// MetadataLookupFailed counts a playlist dropped from a result.
func (m *Metrics) MetadataLookupFailed(reason string) {
	if m == nil {
		return
	}
	m.MetadataLookupFailure.WithLabelValues(reason).Inc()
}

// MetadataCache counts a cache hit or miss.
func (m *Metrics) MetadataCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.MetadataCacheHits.Inc()
		return
	}
	m.MetadataCacheMisses.Inc()
}

// TokenRefreshed counts a scheduled refresh outcome ("ok" or "error").
func (m *Metrics) TokenRefreshed(outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

// ObserveQuery records how long an analytics query took.
func (m *Metrics) ObserveQuery(query string, start time.Time) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}
