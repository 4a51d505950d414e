// Package observability exports cache read outcomes as Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/robby3000/luxicle/cache"
)

var _ cache.Recorder = (*CacheMetrics)(nil)

// CacheMetrics implements cache.Recorder.
type CacheMetrics struct {
	requests    *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
}

// NewCacheMetrics registers the cache counters with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	factory := promauto.With(reg)
	return &CacheMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "luxicle_cache_requests_total",
			Help: "Cached reads by entity and result (hit or miss)",
		}, []string{"entity", "result"}),
		fetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "luxicle_cache_fetch_errors_total",
			Help: "Fetches that failed after retries, by entity",
		}, []string{"entity"}),
	}
}

func (m *CacheMetrics) Hit(entity cache.Entity) {
	m.requests.WithLabelValues(string(entity), "hit").Inc()
}

func (m *CacheMetrics) Miss(entity cache.Entity) {
	m.requests.WithLabelValues(string(entity), "miss").Inc()
}

func (m *CacheMetrics) FetchError(entity cache.Entity) {
	m.fetchErrors.WithLabelValues(string(entity)).Inc()
}
