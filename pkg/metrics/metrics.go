package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Domain operations by outcome
	OperationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_operation_total",
			Help: "Total number of project operations by outcome",
		},
		[]string{"operation", "outcome"}, // outcome: ok, noop, validation, unauthorized, invalid_transition, precondition, conflict, not_found, error
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_operation_duration_seconds",
			Help:    "Project operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"operation"},
	)

	// MQ consume latency in milliseconds
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
		[]string{"routing_key", "queue"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)

	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_cache_requests_total",
			Help: "Project cache lookups by result",
		},
		[]string{"result"}, // hit, miss, error
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox events handed to the broker by result",
		},
		[]string{"routing_key", "result"}, // sent, failed
	)

	ActivityRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_recorded_total",
			Help: "Activity feed entries by result",
		},
		[]string{"result"}, // stored, duplicate, dlq
	)
)

func RecordOperation(operation, outcome string, duration time.Duration) {
	OperationCount.WithLabelValues(operation, outcome).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery counts a slow statement. The duration is already logged by the caller.
func IncrementSlowQuery(statement string, _ time.Duration) {
	SlowQueryCount.WithLabelValues(statement).Inc()
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementCache(result string) {
	CacheRequests.WithLabelValues(result).Inc()
}

func IncrementOutboxPublished(routingKey, result string) {
	OutboxPublished.WithLabelValues(routingKey, result).Inc()
}

func IncrementActivity(result string) {
	ActivityRecorded.WithLabelValues(result).Inc()
}
