package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/params/pkg/params"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "params").
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

	// SessionCount, if set, is exported as the active_sessions gauge.
	SessionCount func() int
}

// MetricsOption configures the Prometheus metrics.
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

// WithSessionCount exports fn as the active_sessions gauge.
func WithSessionCount(fn func() int) MetricsOption {
	return func(c *MetricsConfig) {
		c.SessionCount = fn
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "params",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics collects HTTP and parameter activity. It implements
// params.Observer, so a registry built WithObserver(metrics) reports
// registrations, conversion failures and exports.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	registrationsTotal *prometheus.CounterVec
	conversionFailures *prometheus.CounterVec
	exportsTotal       prometheus.Counter
	exportedKeys       prometheus.Histogram
	liveMessages       *prometheus.CounterVec
}

var _ params.Observer = (*Metrics)(nil)

// NewMetrics registers the metrics with the configured registry.
//
// Metrics collected:
//   - params_http_requests_total: requests by method, route and status
//   - params_http_request_duration_seconds: request latency by route
//   - params_registrations_total: registrations by kind and value source
//   - params_conversion_failures_total: rejected query values by kind
//   - params_exports_total: query string rewrites
//   - params_exported_keys: keys written per export
//   - params_live_messages_total: live channel messages by type
//   - params_active_sessions: live sessions, when WithSessionCount is set
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	m := &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "route", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route"}),

		registrationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "registrations_total",
			Help:        "Parameters registered, by kind and value source",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "source"}),

		conversionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "conversion_failures_total",
			Help:        "Query string values that failed to convert, by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		exportsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "exports_total",
			Help:        "Total number of query string rewrites",
			ConstLabels: config.ConstLabels,
		}),

		exportedKeys: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "exported_keys",
			Help:        "Number of keys written per export",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0, 1, 2, 5, 10, 20, 50},
		}),

		liveMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "live_messages_total",
			Help:        "Live channel messages by type and direction",
			ConstLabels: config.ConstLabels,
		}, []string{"type", "direction"}),
	}

	if config.SessionCount != nil {
		count := config.SessionCount
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of live sessions",
			ConstLabels: config.ConstLabels,
		}, func() float64 { return float64(count()) })
	}
	return m
}

// Handler wraps next, counting requests and timing them by chi route
// pattern. Unmatched requests are labelled "unmatched" to bound cardinality.
func (m *Metrics) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newStatusRecorder(w)

		next.ServeHTTP(rw, r)

		route := routePattern(r)
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
	})
}

// Registered implements params.Observer.
func (m *Metrics) Registered(key string, kind params.Kind, fromQuery bool) {
	source := "default"
	if fromQuery {
		source = "query"
	}
	m.registrationsTotal.WithLabelValues(kind.String(), source).Inc()
}

// ConversionFailed implements params.Observer.
func (m *Metrics) ConversionFailed(key string, kind params.Kind) {
	m.conversionFailures.WithLabelValues(kind.String()).Inc()
}

// Exported implements params.Observer.
func (m *Metrics) Exported(count int) {
	m.exportsTotal.Inc()
	m.exportedKeys.Observe(float64(count))
}

// RecordLiveMessage counts one live channel message. direction is "in" or
// "out".
func (m *Metrics) RecordLiveMessage(msgType, direction string) {
	m.liveMessages.WithLabelValues(msgType, direction).Inc()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
