package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Tezos node RPC metrics
	nodeRPCCallsTotal   *prometheus.CounterVec
	nodeRPCCallDuration *prometheus.HistogramVec

	// Submission pipeline metrics
	pipelineStageDuration *prometheus.HistogramVec
	pipelineStageFailures *prometheus.CounterVec
	operationsSubmitted   *prometheus.CounterVec
	revealsBundled        prometheus.Counter

	// Workflow metrics
	submitWorkflowDuration *prometheus.HistogramVec
	activityDuration       *prometheus.HistogramVec

	// Database metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		nodeRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tezos_rpc_calls_total",
				Help: "Total number of Tezos node RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		nodeRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tezos_rpc_call_duration_seconds",
				Help:    "Duration of Tezos node RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),

		pipelineStageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "submission_stage_duration_seconds",
				Help:    "Duration of each submission pipeline stage in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"stage"},
		),
		pipelineStageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "submission_stage_failures_total",
				Help: "Total number of submissions aborted, by the stage that failed",
			},
			[]string{"stage"},
		),
		operationsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "operations_submitted_total",
				Help: "Total number of operations submitted by kind and outcome",
			},
			[]string{"kind", "status"},
		),
		revealsBundled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reveals_bundled_total",
				Help: "Total number of reveal operations prepended to a submission",
			},
		),

		submitWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "submit_workflow_duration_seconds",
				Help:    "Duration of submit operation workflow executions",
				Buckets: []float64{0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"kind", "status"},
		),
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workflow_activity_duration_seconds",
				Help:    "Duration of individual workflow activities",
				Buckets: []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
			},
			[]string{"activity"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Node RPC metric helpers

// RecordRPCCall records a Tezos node RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.nodeRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.nodeRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// Pipeline metric helpers

// RecordStage records the duration of a pipeline stage and whether it failed.
func (m *Metrics) RecordStage(stage string, duration float64, err error) {
	m.pipelineStageDuration.WithLabelValues(stage).Observe(duration)
	if err != nil {
		m.pipelineStageFailures.WithLabelValues(stage).Inc()
	}
}

// RecordOperationSubmitted records the outcome of one submitted operation.
func (m *Metrics) RecordOperationSubmitted(kind, status string) {
	m.operationsSubmitted.WithLabelValues(kind, status).Inc()
}

// RecordRevealBundled records a reveal being prepended to a submission.
func (m *Metrics) RecordRevealBundled() {
	m.revealsBundled.Inc()
}

// Workflow metric helpers

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(kind, status string, duration float64) {
	m.submitWorkflowDuration.WithLabelValues(kind, status).Observe(duration)
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.activityDuration.WithLabelValues(activity).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
