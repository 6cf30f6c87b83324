package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestExecutorRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewExecutor(reg)
	m.Submitted.Inc()
	m.ConfirmationRounds.Observe(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]*dto.MetricFamily{}
	for _, f := range families {
		names[f.GetName()] = f
	}
	for _, want := range []string{"royalty_groups_submitted_total", "royalty_confirmation_rounds"} {
		if _, ok := names[want]; !ok {
			t.Fatalf("metric %s not registered", want)
		}
	}
	if got := names["royalty_groups_submitted_total"].GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Fatalf("unexpected submitted count %v", got)
	}
}

func TestNilRegistererSkipsRegistration(t *testing.T) {
	m := NewLedgerd(nil)
	m.LastRound.Set(4)
	m.RPCRequests.WithLabelValues("status", "ok").Inc()
}
