package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics the engine exposes at /metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec
	HTTPActiveRequests  *prometheus.GaugeVec

	// Workflow metrics
	WorkflowsTotal       *prometheus.GaugeVec
	WorkflowsCreated     *prometheus.CounterVec
	WorkflowsActivated   *prometheus.CounterVec
	WorkflowsDeactivated *prometheus.CounterVec

	// Execution metrics
	ExecutionsTotal      *prometheus.CounterVec
	ExecutionsCompleted  *prometheus.CounterVec
	ExecutionsFailed     *prometheus.CounterVec
	ExecutionDuration    *prometheus.HistogramVec
	ExecutionsInProgress *prometheus.GaugeVec

	// Node execution metrics
	NodeExecutionsTotal   *prometheus.CounterVec
	NodeExecutionDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen  *prometheus.GaugeVec
	DBConnectionsInUse *prometheus.GaugeVec
	DBQueryDuration    *prometheus.HistogramVec
	DBQueryErrors      *prometheus.CounterVec

	// Kafka metrics
	KafkaMessagesProduced *prometheus.CounterVec
	KafkaPublishErrors    *prometheus.CounterVec

	// System metrics
	SystemGoroutines prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total number of HTTP requests"},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_size_bytes", Help: "HTTP request size in bytes", Buckets: prometheus.ExponentialBuckets(100, 10, 7)},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "http_response_size_bytes", Help: "HTTP response size in bytes", Buckets: prometheus.ExponentialBuckets(100, 10, 7)},
			[]string{"method", "path"},
		),
		HTTPActiveRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "http_active_requests", Help: "Number of active HTTP requests"},
			[]string{"method"},
		),

		WorkflowsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "workflows_total", Help: "Total number of workflows"},
			[]string{"status"},
		),
		WorkflowsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "workflows_created_total", Help: "Total number of workflows created"},
			[]string{},
		),
		WorkflowsActivated: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "workflows_activated_total", Help: "Total number of workflows activated"},
			[]string{},
		),
		WorkflowsDeactivated: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "workflows_deactivated_total", Help: "Total number of workflows deactivated"},
			[]string{},
		),

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "executions_total", Help: "Total number of workflow executions started"},
			[]string{"workflow_id", "trigger"},
		),
		ExecutionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "executions_completed_total", Help: "Total number of completed executions"},
			[]string{"workflow_id"},
		),
		ExecutionsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "executions_failed_total", Help: "Total number of failed executions"},
			[]string{"workflow_id"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace, Name: "execution_duration_seconds", Help: "Workflow execution duration in seconds",
				Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"workflow_id"},
		),
		ExecutionsInProgress: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "executions_in_progress", Help: "Number of executions currently running"},
			[]string{"workflow_id"},
		),

		NodeExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "node_executions_total", Help: "Total number of node executions"},
			[]string{"node_type", "status"},
		),
		NodeExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace, Name: "node_execution_duration_seconds", Help: "Node execution duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"node_type"},
		),

		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed,1=half_open,2=open)"},
			[]string{"circuit_id"},
		),
		CircuitBreakerTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "circuit_breaker_trips_total", Help: "Total number of times a circuit breaker tripped open"},
			[]string{"circuit_id"},
		),

		DBConnectionsOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "db_connections_open", Help: "Number of open database connections"},
			[]string{"database"},
		),
		DBConnectionsInUse: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "db_connections_in_use", Help: "Number of database connections in use"},
			[]string{"database"},
		),
		DBQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "db_query_duration_seconds", Help: "Database query duration in seconds", Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1}},
			[]string{"operation"},
		),
		DBQueryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "db_query_errors_total", Help: "Total number of database query errors"},
			[]string{"operation"},
		),

		KafkaMessagesProduced: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "kafka_messages_produced_total", Help: "Total number of lifecycle events published to Kafka"},
			[]string{"topic"},
		),
		KafkaPublishErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "kafka_publish_errors_total", Help: "Total number of Kafka publish failures"},
			[]string{"topic"},
		),

		SystemGoroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "system_goroutines", Help: "Number of goroutines"},
		),
	}

	m.Register()
	return m
}

// Register registers all metrics with the default Prometheus registry.
func (m *Metrics) Register() {
	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.HTTPActiveRequests,
		m.WorkflowsTotal,
		m.WorkflowsCreated,
		m.WorkflowsActivated,
		m.WorkflowsDeactivated,
		m.ExecutionsTotal,
		m.ExecutionsCompleted,
		m.ExecutionsFailed,
		m.ExecutionDuration,
		m.ExecutionsInProgress,
		m.NodeExecutionsTotal,
		m.NodeExecutionDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBQueryDuration,
		m.DBQueryErrors,
		m.KafkaMessagesProduced,
		m.KafkaPublishErrors,
		m.SystemGoroutines,
	)
}

// Handler returns the Prometheus scrape handler for the registry Register
// wrote to (prometheus.DefaultRegisterer, which telemetry.New may replace).
func (m *Metrics) Handler() http.Handler {
	if g, ok := prometheus.DefaultRegisterer.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// HTTPMetricsMiddleware returns middleware that records HTTP metrics.
func (m *Metrics) HTTPMetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.HTTPActiveRequests.WithLabelValues(r.Method).Inc()
			defer m.HTTPActiveRequests.WithLabelValues(r.Method).Dec()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			if r.ContentLength > 0 {
				m.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)

			if wrapped.size > 0 {
				m.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(wrapped.size))
			}
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	size, err := w.ResponseWriter.Write(b)
	w.size += size
	return size, err
}
