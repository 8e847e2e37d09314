package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Billing webhook metrics
	WebhookEventsTotal    *prometheus.CounterVec
	WebhookSignatureFails prometheus.Counter
	CreditResetsTotal     *prometheus.CounterVec

	// Credit ledger metrics
	CreditsSpentTotal        prometheus.Counter
	CreditsRefundedTotal     prometheus.Counter
	InsufficientCreditsTotal prometheus.Counter

	// Public quota metrics
	QuotaChecksTotal  *prometheus.CounterVec
	QuotaDenialsTotal *prometheus.CounterVec

	// Render backend metrics
	RenderRequestsTotal *prometheus.CounterVec
	RenderDuration      *prometheus.HistogramVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Redis metrics
	RedisConnectionsActive prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesmith_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagesmith_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagesmith_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagesmith_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Billing webhook metrics
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesmith_webhook_events_total",
				Help: "Total number of billing webhook events by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		WebhookSignatureFails: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pagesmith_webhook_signature_failures_total",
				Help: "Total number of webhook deliveries rejected for a bad signature",
			},
		),
		CreditResetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesmith_credit_resets_total",
				Help: "Total number of credit balance resets by plan",
			},
			[]string{"plan"},
		),

		// Credit ledger metrics
		CreditsSpentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pagesmith_credits_spent_total",
				Help: "Total credits decremented for billable work",
			},
		),
		CreditsRefundedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pagesmith_credits_refunded_total",
				Help: "Total credits refunded after failed billable work",
			},
		),
		InsufficientCreditsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pagesmith_insufficient_credits_total",
				Help: "Total number of decrements rejected for insufficient balance",
			},
		),

		// Public quota metrics
		QuotaChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesmith_quota_checks_total",
				Help: "Total number of public quota checks by tool and result",
			},
			[]string{"tool", "result"},
		),
		QuotaDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesmith_quota_denials_total",
				Help: "Total number of denied public generations by tool and reason",
			},
			[]string{"tool", "reason"},
		),

		// Render backend metrics
		RenderRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesmith_render_requests_total",
				Help: "Total number of rendering backend requests",
			},
			[]string{"tool", "status"},
		),
		RenderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagesmith_render_duration_seconds",
				Help:    "Rendering backend request duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tool"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagesmith_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagesmith_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		// Redis metrics
		RedisConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagesmith_redis_connections_active",
				Help: "Number of active Redis connections",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.WebhookEventsTotal,
		m.WebhookSignatureFails,
		m.CreditResetsTotal,
		m.CreditsSpentTotal,
		m.CreditsRefundedTotal,
		m.InsufficientCreditsTotal,
		m.QuotaChecksTotal,
		m.QuotaDenialsTotal,
		m.RenderRequestsTotal,
		m.RenderDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.RedisConnectionsActive,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status and size
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Record request size
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			// Serve the request
			next.ServeHTTP(rw, r)

			// Record metrics
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
