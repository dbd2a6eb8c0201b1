package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unexpected metric type")
	return 0
}

func TestObserveRequest(t *testing.T) {
	before := value(t, requestsTotal.WithLabelValues("DEPOSIT", "ok"))
	ObserveRequest("DEPOSIT", "", time.Millisecond)
	if got := value(t, requestsTotal.WithLabelValues("DEPOSIT", "ok")); got != before+1 {
		t.Fatalf("expected counter to increase by 1, got %v -> %v", before, got)
	}
}

func TestPersistAndSessions(t *testing.T) {
	before := value(t, persistFailures)
	ObservePersist(nil)
	ObservePersist(errors.New("disk full"))
	if got := value(t, persistFailures); got != before+1 {
		t.Fatalf("only failures should count: %v -> %v", before, got)
	}

	g := value(t, sessionsActive)
	SessionOpened()
	SessionOpened()
	SessionClosed()
	if got := value(t, sessionsActive); got != g+1 {
		t.Fatalf("gauge %v -> %v", g, got)
	}

	tb := value(t, transfersTotal.WithLabelValues("true"))
	ObserveTransfer(true)
	if got := value(t, transfersTotal.WithLabelValues("true")); got != tb+1 {
		t.Fatalf("transfer counter %v -> %v", tb, got)
	}
}
