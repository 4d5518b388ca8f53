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
	// Pipeline metrics
	TokensEvaluated *prometheus.CounterVec
	TokenDuration   prometheus.Histogram
	BatchDuration   prometheus.Histogram
	BatchSize       prometheus.Histogram

	// Provider metrics
	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	BreakerState    *prometheus.GaugeVec

	// Ledger metrics
	LedgerErrors *prometheus.CounterVec
	LedgerOps    *prometheus.HistogramVec

	// Notification metrics
	Dispatches *prometheus.CounterVec

	// Ingestion metrics
	CandidatesReceived    *prometheus.CounterVec
	NormalizationFailures *prometheus.CounterVec
	QueueDepth            prometheus.Gauge
	QueueRejected         prometheus.Counter
	LastSuccessfulPoll    prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "token_sentinel"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		TokensEvaluated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "tokens_evaluated_total",
			Help:      "Tokens evaluated, by terminal outcome",
		}, []string{"outcome"}),
		TokenDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "token_duration_seconds",
			Help:      "Wall time spent evaluating one token",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batch_duration_seconds",
			Help:      "Wall time spent evaluating one batch",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batch_size",
			Help:      "Number of candidates per batch",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Provider calls, by provider and result",
		}, []string{"provider", "result"}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_latency_seconds",
			Help:      "Provider call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"provider"}),

		LedgerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "errors_total",
			Help:      "Ledger operations that failed, by operation",
		}, []string{"operation"}),
		LedgerOps: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"operation"}),

		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dispatches_total",
			Help:      "Notification attempts, by sink and result",
		}, []string{"sink", "result"}),

		CandidatesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "candidates_received_total",
			Help:      "Candidates accepted at the ingestion boundary, by source",
		}, []string{"source"}),
		NormalizationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "normalization_failures_total",
			Help:      "Payloads dropped during normalization, by source and reason",
		}, []string{"source", "reason"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "queue_depth",
			Help:      "Candidates waiting in the intake queue",
		}),
		QueueRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "queue_rejected_total",
			Help:      "Candidates rejected because the intake queue was full",
		}),
		LastSuccessfulPoll: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "last_successful_poll_timestamp",
			Help:      "Unix timestamp of the last successful feed poll",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordTokenOutcome records the terminal outcome of one token.
func RecordTokenOutcome(outcome string, seconds float64) {
	DefaultMetrics.TokensEvaluated.WithLabelValues(outcome).Inc()
	DefaultMetrics.TokenDuration.Observe(seconds)
}

// RecordBatch records a completed batch.
func RecordBatch(size int, seconds float64) {
	DefaultMetrics.BatchSize.Observe(float64(size))
	DefaultMetrics.BatchDuration.Observe(seconds)
}

// RecordProviderCall records one guarded provider call.
func RecordProviderCall(provider, result string, seconds float64) {
	DefaultMetrics.ProviderCalls.WithLabelValues(provider, result).Inc()
	DefaultMetrics.ProviderLatency.WithLabelValues(provider).Observe(seconds)
}

// SetBreakerState publishes a circuit breaker state.
func SetBreakerState(provider string, state int) {
	DefaultMetrics.BreakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordLedgerOp records ledger latency and, when err is non-nil, a failure.
func RecordLedgerOp(operation string, seconds float64, err error) {
	DefaultMetrics.LedgerOps.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.LedgerErrors.WithLabelValues(operation).Inc()
	}
}

// RecordDispatch records a notification attempt.
func RecordDispatch(sink string, delivered bool) {
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	DefaultMetrics.Dispatches.WithLabelValues(sink, result).Inc()
}

// RecordCandidateReceived counts an accepted candidate.
func RecordCandidateReceived(source string) {
	DefaultMetrics.CandidatesReceived.WithLabelValues(source).Inc()
}

// RecordNormalizationFailure counts a dropped payload.
func RecordNormalizationFailure(source, reason string) {
	DefaultMetrics.NormalizationFailures.WithLabelValues(source, reason).Inc()
}

// UpdateQueueDepth sets the intake queue gauge.
func UpdateQueueDepth(n int) {
	DefaultMetrics.QueueDepth.Set(float64(n))
}

// RecordQueueRejected counts a candidate refused by a full queue.
func RecordQueueRejected() {
	DefaultMetrics.QueueRejected.Inc()
}

// RecordPollSuccess stamps the last successful poll time.
func RecordPollSuccess(unixSeconds float64) {
	DefaultMetrics.LastSuccessfulPoll.Set(unixSeconds)
}
