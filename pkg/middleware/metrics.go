// Package middleware provides observability middleware for the Reflow
// sync server: Prometheus metrics and OpenTelemetry traces.
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/reflow-dev/reflow/pkg/model"
	"github.com/reflow-dev/reflow/pkg/reflow"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "reflow").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultMetricsConfig returns the default metrics configuration.
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "reflow",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus metrics for the sync server.
type metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	changesTotal    prometheus.Counter
	pathErrors      prometheus.Counter
	liveSessions    prometheus.Gauge
	watchedPaths    prometheus.Gauge
}

// globalMetrics is the singleton metrics instance, created on first
// call to Prometheus().
var (
	globalMetrics     *metrics
	globalMetricsOnce sync.Once
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total HTTP requests handled by the sync server.",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds.",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"method"}),
		changesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "changes_total",
			Help:        "Total value-changing writes to the model.",
			ConstLabels: config.ConstLabels,
		}),
		pathErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "path_errors_total",
			Help:        "Total path resolution failures.",
			ConstLabels: config.ConstLabels,
		}),
		liveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "live_sessions",
			Help:        "Currently connected live-stream sessions.",
			ConstLabels: config.ConstLabels,
		}),
		watchedPaths: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "watched_paths",
			Help:        "Currently active live-stream watch bindings.",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// statusRecorder captures the response status for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Prometheus returns HTTP middleware that records request counts and
// durations for every sync-server route.
func Prometheus(opts ...MetricsOption) func(http.Handler) http.Handler {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsOnce.Do(func() {
		globalMetrics = initMetrics(config)
	})
	m := globalMetrics

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			m.requestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
			m.requestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

// TrackModel subscribes the metrics to a model's change feed, counting
// every value-changing write. Returns the cancel function for the feed
// subscription. Prometheus() must have run first; otherwise this is a
// no-op.
func TrackModel(m *model.Model) func() {
	if globalMetrics == nil {
		return func() {}
	}
	return m.Subscribe(func(reflow.Change) {
		globalMetrics.changesTotal.Inc()
	})
}

// CountPathError increments the path failure counter. Called by
// handlers when a request path does not resolve.
func CountPathError() {
	if globalMetrics != nil {
		globalMetrics.pathErrors.Inc()
	}
}

// SessionOpened increments the live-session gauge.
func SessionOpened() {
	if globalMetrics != nil {
		globalMetrics.liveSessions.Inc()
	}
}

// SessionClosed decrements the live-session gauge.
func SessionClosed() {
	if globalMetrics != nil {
		globalMetrics.liveSessions.Dec()
	}
}

// WatchAdded increments the watch-binding gauge.
func WatchAdded() {
	if globalMetrics != nil {
		globalMetrics.watchedPaths.Inc()
	}
}

// WatchRemoved decrements the watch-binding gauge.
func WatchRemoved() {
	if globalMetrics != nil {
		globalMetrics.watchedPaths.Dec()
	}
}
