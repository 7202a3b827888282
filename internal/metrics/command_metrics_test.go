package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)

	var total float64
	for m := range ch {
		var out dto.Metric
		if err := m.Write(&out); err != nil {
			t.Fatalf("write metric: %v", err)
		}
		if out.Counter != nil {
			total += out.Counter.GetValue()
		}
	}
	return total
}

func TestNewCommandMetricsWithRegisterer(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewCommandMetricsWithRegisterer(registry)

	if m.commands == nil || m.duration == nil || m.conflicts == nil || m.events == nil || m.publishFailures == nil {
		t.Fatal("all collectors must be initialised")
	}
}

func TestNewCommandMetrics_ReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewCommandMetricsWithRegisterer(registry)
	second := NewCommandMetricsWithRegisterer(registry)

	first.RecordConflict("item")
	second.RecordConflict("item")

	if got := counterValue(t, first.conflicts.WithLabelValues("item")); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestRecordCommand(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewCommandMetricsWithRegisterer(registry)

	m.RecordCommand("reserve_stock", "committed", 5*time.Millisecond)
	m.RecordCommand("reserve_stock", "committed", 7*time.Millisecond)
	m.RecordCommand("reserve_stock", "conflict", time.Millisecond)

	if got := counterValue(t, m.commands.WithLabelValues("reserve_stock", "committed")); got != 2 {
		t.Fatalf("committed = %v, want 2", got)
	}
	if got := counterValue(t, m.commands.WithLabelValues("reserve_stock", "conflict")); got != 1 {
		t.Fatalf("conflict = %v, want 1", got)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var samples uint64
	for _, mf := range families {
		if mf.GetName() != "orderstock_command_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			samples += metric.GetHistogram().GetSampleCount()
		}
	}
	if samples != 3 {
		t.Fatalf("expected 3 duration samples, got %d", samples)
	}
}

func TestRecordEventAndPublishFailure(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewCommandMetricsWithRegisterer(registry)

	m.RecordEvent("order.paid")
	m.RecordPublishFailure()
	m.RecordPublishFailure()

	if got := counterValue(t, m.events.WithLabelValues("order.paid")); got != 1 {
		t.Fatalf("events = %v, want 1", got)
	}
	if got := counterValue(t, m.publishFailures); got != 2 {
		t.Fatalf("publish failures = %v, want 2", got)
	}
}

func TestHTTPMetricsObserve_CreatedAndUnmatched(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewHTTPMetrics(registry)

	m.Observe("POST", "/v1/items", 201, time.Millisecond)
	m.Observe("GET", "", 404, time.Millisecond)

	if got := counterValue(t, m.requests.WithLabelValues("POST", "/v1/items", "201")); got != 1 {
		t.Fatalf("requests = %v, want 1", got)
	}
	if got := counterValue(t, m.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched = %v, want 1", got)
	}
}
