// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Program metrics
	InstructionsTotal   *prometheus.CounterVec
	InstructionLatency  *prometheus.HistogramVec
	InstructionRejected *prometheus.CounterVec
	CommitConflicts     *prometheus.CounterVec

	// Ledger metrics
	TransactionsProcessed *prometheus.CounterVec
	LastCommittedSlot     prometheus.Gauge

	// Submitter metrics
	SubmissionsTotal    *prometheus.CounterVec
	ConfirmationLatency *prometheus.HistogramVec

	// Solana client metrics
	RPCCallLatency   *prometheus.HistogramVec
	WSMessageLatency prometheus.Histogram

	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
// against the default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers metrics against reg. Tests use a fresh registry.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "voteledger"
	}
	factory := promauto.With(reg)

	return &Metrics{
		InstructionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "instructions_total",
			Help:      "Total number of executed instructions by kind and status",
		}, []string{"instruction", "status"}),
		InstructionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "instruction_latency_seconds",
			Help:      "Instruction execution latency in seconds, including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"instruction"}),
		InstructionRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "rejections_total",
			Help:      "Total number of rejected instructions by error name",
		}, []string{"instruction", "error"}),
		CommitConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "commit_conflicts_total",
			Help:      "Total number of optimistic commit conflicts that forced a retry",
		}, []string{"instruction"}),

		TransactionsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Total number of processed transactions by status",
		}, []string{"status"}),
		LastCommittedSlot: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "last_committed_slot",
			Help:      "Slot of the last committed instruction",
		}),

		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "submissions_total",
			Help:      "Total number of submissions by submitter and outcome",
		}, []string{"submitter", "outcome"}),
		ConfirmationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "confirmation_latency_seconds",
			Help:      "Time from submission to confirmation in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"submitter"}),

		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSMessageLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_message_latency_seconds",
			Help:      "WebSocket message processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordInstruction records an executed instruction and its latency.
func RecordInstruction(instruction, status string, seconds float64) {
	DefaultMetrics.InstructionsTotal.WithLabelValues(instruction, status).Inc()
	DefaultMetrics.InstructionLatency.WithLabelValues(instruction).Observe(seconds)
}

// RecordRejection records a rejected instruction by error name.
func RecordRejection(instruction, errName string) {
	DefaultMetrics.InstructionRejected.WithLabelValues(instruction, errName).Inc()
}

// RecordConflict records a commit conflict.
func RecordConflict(instruction string) {
	DefaultMetrics.CommitConflicts.WithLabelValues(instruction).Inc()
}

// RecordTransaction records a processed ledger transaction.
func RecordTransaction(status string, slot uint64) {
	DefaultMetrics.TransactionsProcessed.WithLabelValues(status).Inc()
	if slot > 0 {
		DefaultMetrics.LastCommittedSlot.Set(float64(slot))
	}
}

// RecordSubmission records a submitter outcome.
func RecordSubmission(submitter, outcome string) {
	DefaultMetrics.SubmissionsTotal.WithLabelValues(submitter, outcome).Inc()
}

// RecordConfirmation records confirmation latency.
func RecordConfirmation(submitter string, seconds float64) {
	DefaultMetrics.ConfirmationLatency.WithLabelValues(submitter).Observe(seconds)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWSMessage records websocket message handling latency.
func RecordWSMessage(seconds float64) {
	DefaultMetrics.WSMessageLatency.Observe(seconds)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(route, code string, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, code).Inc()
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(route).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
