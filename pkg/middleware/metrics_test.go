package middleware

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/pulse-go/pulse/pkg/host"
	"github.com/pulse-go/pulse/pkg/protocol"
	"github.com/pulse-go/pulse/pkg/pulse"
)

func resetMetrics() {
	globalMetricsMu.Lock()
	globalMetrics = nil
	globalMetricsMu.Unlock()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v) error: %v", labels, err)
	}
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestPrometheusCountsEvents(t *testing.T) {
	resetMetrics()
	reg := prometheus.NewRegistry()

	calls := 0
	var next host.EventHandler = func(ctx context.Context, sess *host.Session, ev *protocol.Event) error {
		calls++
		if ev.Control == "broken" {
			return &pulse.CycleError{Frame: 1, Cells: []string{"broken"}}
		}
		return nil
	}

	h := Prometheus(WithRegistry(reg))(next)
	ev := &protocol.Event{Seq: 1, Control: "volume", Value: 5}
	if err := h(context.Background(), nil, ev); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if err := h(context.Background(), nil, &protocol.Event{Seq: 2, Control: "broken"}); err == nil {
		t.Fatal("expected error from broken control")
	}
	if calls != 2 {
		t.Fatalf("next called %d times, want 2", calls)
	}

	m := globalMetrics
	if got := counterValue(t, m.eventsTotal, "volume", "success"); got != 1 {
		t.Errorf("events_total{volume,success} = %v, want 1", got)
	}
	if got := counterValue(t, m.eventsTotal, "broken", "error"); got != 1 {
		t.Errorf("events_total{broken,error} = %v, want 1", got)
	}
	if got := counterValue(t, m.eventErrors, "broken", "cycle"); got != 1 {
		t.Errorf("event_errors_total{broken,cycle} = %v, want 1", got)
	}
}

func TestPrometheusSingleton(t *testing.T) {
	resetMetrics()
	reg := prometheus.NewRegistry()

	Prometheus(WithRegistry(reg))
	first := globalMetrics
	Prometheus(WithRegistry(prometheus.NewRegistry()))
	if globalMetrics != first {
		t.Error("second Prometheus() call replaced the metrics instance")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&pulse.CycleError{Frame: 1}, "cycle"},
		{&pulse.UnknownIDError{ID: "x"}, "unknown_control"},
		{&pulse.ComputationError{ComputationID: "c", Err: errors.New("boom")}, "computation"},
		{pulse.ErrScopeDisposed, "scope_disposed"},
		{fmt.Errorf("wrapped: %w", pulse.ErrUnknownID), "unknown_control"},
		{errors.New("anything else"), "internal"},
	}
	for _, tt := range tests {
		if got := classifyError(tt.err); got != tt.want {
			t.Errorf("classifyError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
