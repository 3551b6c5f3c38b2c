// Package metrics exposes Prometheus collectors for interview activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "orientador"

// Metrics groups every collector reported by the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	interviewsStarted   prometheus.Counter
	interviewsCompleted prometheus.Counter
	answers             *prometheus.CounterVec
	completionRequests  *prometheus.CounterVec
	completionDuration  *prometheus.HistogramVec
	persistenceFailures *prometheus.CounterVec
	sinkDeliveries      *prometheus.CounterVec
	liveSessions        prometheus.Gauge
}

// MustNewMetrics registers the collectors with reg, panicking on conflicts.
// A nil reg uses the default registerer.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		interviewsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "interview",
			Name:      "started_total",
			Help:      "Interviews that captured a user name.",
		}),
		interviewsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "interview",
			Name:      "completed_total",
			Help:      "Interviews that produced a recommendation.",
		}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "interview",
			Name:      "answers_total",
			Help:      "Answers judged by the validator, by outcome.",
		}, []string{"outcome"}),
		completionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "completion",
			Name:      "requests_total",
			Help:      "Calls to the completion service by operation and outcome.",
		}, []string{"op", "outcome"}),
		completionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "completion",
			Name:      "request_duration_seconds",
			Help:      "Latency of completion service calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"op"}),
		persistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "failures_total",
			Help:      "Failed conversation store operations.",
		}, []string{"op"}),
		sinkDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "deliveries_total",
			Help:      "Recommendation deliveries to the result sink by outcome.",
		}, []string{"outcome"}),
		liveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "interview",
			Name:      "live_sessions",
			Help:      "Sessions currently held in memory.",
		}),
	}
	reg.MustRegister(
		m.interviewsStarted,
		m.interviewsCompleted,
		m.answers,
		m.completionRequests,
		m.completionDuration,
		m.persistenceFailures,
		m.sinkDeliveries,
		m.liveSessions,
	)
	return m
}

func (m *Metrics) IncInterviewStarted() {
	if m == nil {
		return
	}
	m.interviewsStarted.Inc()
}

func (m *Metrics) IncInterviewCompleted() {
	if m == nil {
		return
	}
	m.interviewsCompleted.Inc()
}

// IncAnswer counts a validated answer. Outcome is "accepted", "forced" or a rejection reason.
func (m *Metrics) IncAnswer(outcome string) {
	if m == nil {
		return
	}
	m.answers.WithLabelValues(outcome).Inc()
}

// ObserveCompletion records one completion call.
func (m *Metrics) ObserveCompletion(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.completionRequests.WithLabelValues(op, outcome).Inc()
	m.completionDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) IncPersistenceFailure(op string) {
	if m == nil {
		return
	}
	m.persistenceFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) IncSinkDelivery(outcome string) {
	if m == nil {
		return
	}
	m.sinkDeliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetLiveSessions(n int) {
	if m == nil {
		return
	}
	m.liveSessions.Set(float64(n))
}
