package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RecordsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_records_received_total",
			Help: "Total number of delivery records handed to the batch consumer (count)",
		},
		[]string{"transport"},
	)

	BatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herald_batch_size",
			Help:    "Number of records per batch invocation",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
		[]string{"transport"},
	)

	DecodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_decode_total",
			Help: "Envelope decode results (count)",
		},
		[]string{"transport", "status"},
	)

	DeliveryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_delivery_total",
			Help: "Webhook delivery results (count)",
		},
		[]string{"status"},
	)

	DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herald_delivery_duration_ms",
			Help:    "Webhook delivery duration in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	AcknowledgeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_acknowledge_total",
			Help: "Acknowledge results (count)",
		},
		[]string{"transport", "status"},
	)

	DuplicateDeliveriesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_duplicate_deliveries_skipped_total",
			Help: "Redelivered records already present in the delivery ledger (count)",
		},
	)

	LedgerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_ledger_operations_total",
			Help: "Delivery ledger operations by result (count)",
		},
		[]string{"operation", "status"},
	)

	LedgerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herald_ledger_duration_ms",
			Help:    "Delivery ledger round trip in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
		[]string{"operation"},
	)

	DeadLetterNoticesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_dead_letter_notices_total",
			Help: "Dead-letter notices published to the notice stream (count)",
		},
		[]string{"status"},
	)

	RecordFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_record_failures_total",
			Help: "Failed records by class: retryable failures may clear on redelivery, fatal ones never do (count)",
		},
		[]string{"transport", "class"},
	)

	DLQBoundaryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_dlq_boundary_total",
			Help: "Records that failed on their final attempt and will be dead-lettered by the queue (count)",
		},
		[]string{"transport", "reason"},
	)

	PollErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_poll_errors_total",
			Help: "Queue receive errors in worker mode (count)",
		},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_ops_rate_limit_requests_total",
			Help: "Ops API requests by rate limit decision (count)",
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once (Lambda warm starts reuse the process).
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RecordsReceivedTotal,
			BatchSize,
			DecodeTotal,
			DeliveryTotal,
			DeliveryDuration,
			AcknowledgeTotal,
			DuplicateDeliveriesSkipped,
			LedgerOperationsTotal,
			LedgerDuration,
			DeadLetterNoticesTotal,
			RecordFailuresTotal,
			DLQBoundaryTotal,
			PollErrorsTotal,
			RateLimitRequestsTotal,
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
		)
	})
}

func ObserveBatch(transport string, size int) {
	BatchSize.WithLabelValues(transport).Observe(float64(size))
	RecordsReceivedTotal.WithLabelValues(transport).Add(float64(size))
}

func IncDecode(transport, status string) {
	DecodeTotal.WithLabelValues(transport, status).Inc()
}

func ObserveDelivery(duration time.Duration, status string) {
	DeliveryTotal.WithLabelValues(status).Inc()
	DeliveryDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncAcknowledge(transport, status string) {
	AcknowledgeTotal.WithLabelValues(transport, status).Inc()
}

func IncRecordFailure(transport, class string) {
	RecordFailuresTotal.WithLabelValues(transport, class).Inc()
}

func IncDLQBoundary(transport, reason string) {
	DLQBoundaryTotal.WithLabelValues(transport, reason).Inc()
}

func ObserveLedger(operation, status string, duration time.Duration) {
	LedgerOperationsTotal.WithLabelValues(operation, status).Inc()
	LedgerDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}
