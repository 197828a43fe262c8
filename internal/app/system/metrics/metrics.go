// Package metrics holds the Prometheus collectors for workflow activity.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomePartial = "partial"
	OutcomeSkipped = "skipped"
)

var (
	registerOnce        sync.Once
	transitionsTotal    *prometheus.CounterVec
	badgesIssuedTotal   *prometheus.CounterVec
	dispatchTotal       *prometheus.CounterVec
	dispatchLatencySecs *prometheus.HistogramVec
)

// RegisterMetrics initialises and registers the collectors once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "favored_workflow_transitions_total",
			Help: "Completion and membership workflow transitions by name and outcome.",
		}, []string{"transition", "outcome"})

		badgesIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "favored_badges_issued_total",
			Help: "Badges written during finalization, by category.",
		}, []string{"category"})

		dispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "favored_notification_dispatch_total",
			Help: "Email notification dispatch attempts by kind and outcome.",
		}, []string{"kind", "outcome"})

		dispatchLatencySecs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "favored_notification_dispatch_seconds",
			Help:    "Latency of notification dispatcher calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"kind"})

		prometheus.MustRegister(transitionsTotal, badgesIssuedTotal, dispatchTotal, dispatchLatencySecs)
	})
}

// Transitions counts workflow transitions.
func Transitions() *prometheus.CounterVec {
	RegisterMetrics()
	return transitionsTotal
}

// BadgesIssued counts newly written badges.
func BadgesIssued() *prometheus.CounterVec {
	RegisterMetrics()
	return badgesIssuedTotal
}

// Dispatches counts notification dispatcher calls.
func Dispatches() *prometheus.CounterVec {
	RegisterMetrics()
	return dispatchTotal
}

// DispatchLatency observes dispatcher call latency.
func DispatchLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return dispatchLatencySecs
}

// Outcome maps an error to OutcomeOK or OutcomeFailed.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeOK
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
