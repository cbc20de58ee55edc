package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for title operations.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	TitlesRegistered  prometheus.Counter
	TitlesTransferred prometheus.Counter
	TitlesDeleted     prometheus.Counter
	DegradedReads     *prometheus.CounterVec
}

// New registers the title metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "title_registry_operations_total",
			Help: "Title operations by name and outcome (ok or error code)",
		}, []string{"operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "title_registry_operation_duration_seconds",
			Help:    "Duration of title operations including every ledger round trip",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),
		TitlesRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "title_registry_titles_registered_total",
			Help: "Titles successfully registered",
		}),
		TitlesTransferred: factory.NewCounter(prometheus.CounterOpts{
			Name: "title_registry_titles_transferred_total",
			Help: "Accepted ownership transfers",
		}),
		TitlesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "title_registry_titles_deleted_total",
			Help: "Titles deleted",
		}),
		DegradedReads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "title_registry_degraded_reads_total",
			Help: "Reads answered with a fallback because the ledger was unreachable",
		}, []string{"operation"}),
	}
}

// ObserveOperation records the outcome and duration of one operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation, outcome string, start time.Time) {
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementDegraded(operation string) {
	m.DegradedReads.WithLabelValues(operation).Inc()
}
