package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/cdpproxy/pkg/cdp"
	"github.com/vango-dev/cdpproxy/pkg/transport"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "cdpproxy").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for call duration.
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

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "cdpproxy",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

type metrics struct {
	callsTotal     *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
	callErrors     *prometheus.CounterVec
	pendingCalls   prometheus.Gauge
	activeSessions prometheus.Gauge
	sessionsTotal  prometheus.Counter
	relayedTotal   *prometheus.CounterVec
	droppedTotal   *prometheus.CounterVec
	dialFailures   prometheus.Counter
	dialRetries    prometheus.Counter
	wsErrors       *prometheus.CounterVec
}

// globalMetrics is created by the first call to Prometheus or InitMetrics.
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		callsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "calls_total",
			Help:        "Total number of outbound protocol calls by method and status",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "status"}),

		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "call_duration_seconds",
			Help:        "Time from issuing a call to its settlement in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"method"}),

		callErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "call_errors_total",
			Help:        "Total number of failed calls by method and error type",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "error_type"}),

		pendingCalls: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pending_calls",
			Help:        "Number of calls awaiting a reply",
			ConstLabels: config.ConstLabels,
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of proxied debugger sessions",
			ConstLabels: config.ConstLabels,
		}),

		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sessions_total",
			Help:        "Total number of proxied debugger sessions",
			ConstLabels: config.ConstLabels,
		}),

		relayedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "relayed_messages_total",
			Help:        "Total relayed messages by direction and kind",
			ConstLabels: config.ConstLabels,
		}, []string{"direction", "kind"}),

		droppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dropped_messages_total",
			Help:        "Total messages suppressed by interceptors by direction",
			ConstLabels: config.ConstLabels,
		}, []string{"direction"}),

		dialFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dial_failures_total",
			Help:        "Total number of target dials that failed after all retries",
			ConstLabels: config.ConstLabels,
		}),

		dialRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dial_retries_total",
			Help:        "Total number of retried target dial attempts",
			ConstLabels: config.ConstLabels,
		}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "websocket_errors_total",
			Help:        "Total WebSocket errors by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
	}
}

// InitMetrics creates the global metrics if they do not exist yet. Later calls, and
// later calls to Prometheus, reuse the first set and ignore their options.
func InitMetrics(opts ...MetricsOption) {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	globalMetricsMu.Unlock()
}

func currentMetrics() *metrics {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	return globalMetrics
}

// Prometheus creates call middleware that collects Prometheus metrics.
//
// Metrics collected:
//   - cdpproxy_calls_total: Counter of calls by method and status
//   - cdpproxy_call_duration_seconds: Histogram of issue-to-settle time
//   - cdpproxy_call_errors_total: Counter of failed calls by method and error type
//   - cdpproxy_pending_calls: Gauge of calls awaiting a reply
//
// The proxy records its own session and relay metrics through the Record functions
// once the metrics exist.
//
// Example:
//
//	conn := cdp.NewConnection(t, cdp.WithMiddleware(
//	    middleware.Prometheus(middleware.WithNamespace("myproxy")),
//	))
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) cdp.CallMiddleware {
	InitMetrics(opts...)
	m := currentMetrics()

	return cdp.CallMiddlewareFunc(func(ctx context.Context, info cdp.CallInfo, next func() error) error {
		start := time.Now()
		m.pendingCalls.Inc()

		err := next()

		m.pendingCalls.Dec()
		m.callDuration.WithLabelValues(info.Method).Observe(time.Since(start).Seconds())

		status := "success"
		if err != nil {
			status = "error"
			m.callErrors.WithLabelValues(info.Method, categorizeError(err)).Inc()
		}
		m.callsTotal.WithLabelValues(info.Method, status).Inc()

		return err
	})
}

// categorizeError returns a bounded category for err, so error text never becomes a
// label value.
func categorizeError(err error) string {
	var protocolErr *cdp.ProtocolError
	var transportErr *transport.Error
	switch {
	case errors.As(err, &protocolErr):
		return "protocol"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, cdp.ErrCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &transportErr):
		return "transport"
	default:
		return "internal"
	}
}

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordSessionStart records a new proxied session.
func RecordSessionStart() {
	if m := currentMetrics(); m != nil {
		m.activeSessions.Inc()
		m.sessionsTotal.Inc()
	}
}

// RecordSessionEnd records the end of a proxied session.
func RecordSessionEnd() {
	if m := currentMetrics(); m != nil {
		m.activeSessions.Dec()
	}
}

// RecordRelayed records one relayed message.
func RecordRelayed(direction string, kind cdp.Kind) {
	if m := currentMetrics(); m != nil {
		m.relayedTotal.WithLabelValues(direction, kind.String()).Inc()
	}
}

// RecordDropped records a message an interceptor suppressed.
func RecordDropped(direction string) {
	if m := currentMetrics(); m != nil {
		m.droppedTotal.WithLabelValues(direction).Inc()
	}
}

// RecordDialRetry records a failed dial attempt that will be retried.
func RecordDialRetry() {
	if m := currentMetrics(); m != nil {
		m.dialRetries.Inc()
	}
}

// RecordDialFailure records a target dial that gave up.
func RecordDialFailure() {
	if m := currentMetrics(); m != nil {
		m.dialFailures.Inc()
	}
}

// RecordWebSocketError records a transport error.
func RecordWebSocketError(err error) {
	if m := currentMetrics(); m != nil {
		m.wsErrors.WithLabelValues(webSocketErrorType(err)).Inc()
	}
}

func webSocketErrorType(err error) string {
	var malformed *transport.MalformedFrameError
	var transportErr *transport.Error
	var decodeErr *cdp.DecodeError
	switch {
	case errors.As(err, &malformed), errors.As(err, &decodeErr):
		return "malformed"
	case errors.Is(err, transport.ErrTransportClosed):
		return "closed"
	case errors.As(err, &transportErr):
		return transportErr.Op
	default:
		return "other"
	}
}
