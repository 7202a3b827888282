package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestHTTPMetricsObserve(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewHTTPMetrics(registry)

	m.Observe("POST", "/v1/items/:id/stock/reserve", 200, 3*time.Millisecond)
	m.Observe("POST", "/v1/items/:id/stock/reserve", 200, 4*time.Millisecond)
	m.Observe("POST", "/v1/items/:id/stock/reserve", 422, time.Millisecond)

	if got := counterValue(t, m.requests.WithLabelValues("POST", "/v1/items/:id/stock/reserve", "200")); got != 2 {
		t.Fatalf("expected 2 successful requests, got %v", got)
	}
	if got := counterValue(t, m.requests.WithLabelValues("POST", "/v1/items/:id/stock/reserve", "422")); got != 1 {
		t.Fatalf("expected 1 rejected request, got %v", got)
	}

	observer, ok := m.latency.WithLabelValues("POST", "/v1/items/:id/stock/reserve").(prometheus.Histogram)
	if !ok {
		t.Fatal("latency observer must be a histogram")
	}
	var out dto.Metric
	if err := observer.Write(&out); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if got := out.GetHistogram().GetSampleCount(); got != 3 {
		t.Fatalf("expected 3 latency samples, got %d", got)
	}
}

func TestHTTPMetricsObserve_UnmatchedRoute(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())

	m.Observe("GET", "", 404, time.Millisecond)

	if got := counterValue(t, m.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("expected unmatched route counter 1, got %v", got)
	}
}

func TestNewHTTPMetrics_ReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewHTTPMetrics(registry)
	second := NewHTTPMetrics(registry)

	first.Observe("GET", "/v1/orders/:id", 200, time.Millisecond)
	second.Observe("GET", "/v1/orders/:id", 200, time.Millisecond)

	if got := counterValue(t, first.requests.WithLabelValues("GET", "/v1/orders/:id", "200")); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}
