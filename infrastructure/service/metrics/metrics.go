package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fixora/secret-review/application/port/outbound"
)

const namespace = "secret_review"

// Metrics holds the service collectors. Build it once per registry.
type Metrics struct {
	RequestTotal      *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	CleanupDeleted    prometheus.Counter
	CleanupFailed     prometheus.Counter
}

var _ outbound.WorkflowMetrics = (*Metrics)(nil)

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_operations_total",
				Help:      "Workflow operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_operation_duration_seconds",
				Help:      "Workflow operation latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CleanupDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_deleted_total",
			Help:      "Staging records removed by the cleanup sweep",
		}),
		CleanupFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failed_total",
			Help:      "Staging records the cleanup sweep failed to remove",
		}),
	}
}

func (m *Metrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) ObserveCleanup(deleted, failed int) {
	m.CleanupDeleted.Add(float64(deleted))
	m.CleanupFailed.Add(float64(failed))
}
