package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.IncInterviewStarted()
	m.IncAnswer("accepted")
	m.IncAnswer("accepted")
	m.IncAnswer("evasive")
	m.ObserveCompletion("transition", nil, 200*time.Millisecond)
	m.ObserveCompletion("transition", errors.New("boom"), time.Second)
	m.IncPersistenceFailure("save")
	m.SetLiveSessions(3)

	if got := testutil.ToFloat64(m.interviewsStarted); got != 1 {
		t.Errorf("interviews started = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.answers.WithLabelValues("accepted")); got != 2 {
		t.Errorf("accepted answers = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.completionRequests.WithLabelValues("transition", "error")); got != 1 {
		t.Errorf("completion errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.persistenceFailures.WithLabelValues("save")); got != 1 {
		t.Errorf("persistence failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.liveSessions); got != 3 {
		t.Errorf("live sessions = %v, want 3", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncInterviewStarted()
	m.IncInterviewCompleted()
	m.IncAnswer("x")
	m.ObserveCompletion("op", nil, time.Second)
	m.IncPersistenceFailure("save")
	m.IncSinkDelivery("ok")
	m.SetLiveSessions(1)
}
