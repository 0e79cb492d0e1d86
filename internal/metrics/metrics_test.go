package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.SessionStarted()
		m.SessionCompleted(true)
		m.UsageCounterFailed("used")
		m.MetadataLookupFailed("not_found")
		m.MetadataCache(true)
		m.TokenRefreshed("ok")
		m.ObserveQuery("stats", time.Now())
	})
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SessionStarted()
	m.SessionStarted()
	m.SessionCompleted(true)
	m.SessionCompleted(false)
	m.SessionCompleted(false)
	m.UsageCounterFailed("completed")
	m.MetadataLookupFailed("unavailable")
	m.MetadataCache(true)
	m.MetadataCache(false)
	m.MetadataCache(false)
	m.TokenRefreshed("error")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsCompleted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DuplicateCompletions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UsageCounterFailures.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MetadataLookupFailure.WithLabelValues("unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MetadataCacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MetadataCacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("error")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SessionStarted()
	m.ObserveQuery("leaderboard", time.Now())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "adorify_sessions_started_total 1")
	assert.Contains(t, body, `adorify_query_duration_seconds_count{query="leaderboard"} 1`)
}
