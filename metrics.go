package arrivals

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can construct independent
// instances without collector name collisions.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	feedRefreshes   prometheus.Counter
	refreshFailures *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	estimates       *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arrivals_http_requests_total",
			Help: "HTTP requests served, by method, path and status code.",
		}, []string{"method", "path", "status"}),
		feedRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "arrivals_feed_refreshes_total",
			Help: "Completed realtime snapshot refreshes.",
		}),
		refreshFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arrivals_feed_refresh_failures_total",
			Help: "Failed upstream feed fetches, by channel.",
		}, []string{"channel"}),
		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "arrivals_feed_refresh_duration_seconds",
			Help:    "Wall time of a full snapshot refresh.",
			Buckets: prometheus.DefBuckets,
		}),
		estimates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arrivals_estimates_total",
			Help: "Arrival estimates produced, by prediction source.",
		}, []string{"source"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, path string, status int) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveFeedRefresh(took time.Duration) {
	m.feedRefreshes.Inc()
	m.refreshDuration.Observe(took.Seconds())
}

func (m *Metrics) FeedRefreshFailed(channel string) {
	m.refreshFailures.WithLabelValues(channel).Inc()
}

func (m *Metrics) EstimateProduced(source string) {
	m.estimates.WithLabelValues(source).Inc()
}
