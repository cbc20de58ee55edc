package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ledger sessions.
type Metrics struct {
	SessionsTotal      *prometheus.CounterVec
	SessionsInFlight   prometheus.Gauge
	DispatchDuration   *prometheus.HistogramVec
	CloseFailures      prometheus.Counter
	BreakerTransitions *prometheus.CounterVec
}

// New registers the ledger metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		SessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "title_registry_ledger_sessions_total",
			Help: "Ledger sessions by outcome (ok or error code)",
		}, []string{"outcome"}),
		SessionsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "title_registry_ledger_sessions_in_flight",
			Help: "Ledger sessions currently open",
		}),
		DispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "title_registry_ledger_dispatch_duration_seconds",
			Help:    "Duration of ledger transactions by name and kind",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"transaction", "kind"}),
		CloseFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "title_registry_ledger_close_failures_total",
			Help: "Ledger sessions whose teardown returned an error",
		}),
		BreakerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "title_registry_ledger_breaker_transitions_total",
			Help: "Ledger circuit breaker state changes",
		}, []string{"state"}),
	}
}

// SessionStarted marks a session as in flight.
func (m *Metrics) SessionStarted() {
	m.SessionsInFlight.Inc()
}

// SessionFinished records the outcome of a session and clears it from the
// in-flight gauge.
func (m *Metrics) SessionFinished(outcome string) {
	m.SessionsInFlight.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDispatch records the duration of one transaction.
// Call with time.Now() at the start of the dispatch.
func (m *Metrics) ObserveDispatch(transaction, kind string, start time.Time) {
	m.DispatchDuration.WithLabelValues(transaction, kind).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementCloseFailures() {
	m.CloseFailures.Inc()
}

func (m *Metrics) RecordBreakerTransition(state string) {
	m.BreakerTransitions.WithLabelValues(state).Inc()
}
