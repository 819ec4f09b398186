package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.EventClassified("note")
	m.EventDropped("queue_full")
	m.SetQueueDepth(1)
	m.HistoryInserted("inserted", false, 1)
	m.ReplyObserved("success", time.Millisecond)
	m.HandlerFailed("respond")
	m.Published("6300", "success")
	m.SetRelaysConnected(2)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) != 11 {
		t.Fatalf("expected 11 metric families, got %d", len(families))
	}
}

func TestEventClassifiedCounts(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.EventClassified("note")
	m.EventClassified("note")
	m.EventClassified("service_request")

	expected := `
		# HELP notedvm_events_received_total Total number of events dispatched by category
		# TYPE notedvm_events_received_total counter
		notedvm_events_received_total{category="note"} 2
		notedvm_events_received_total{category="service_request"} 1
	`
	if err := testutil.CollectAndCompare(m.EventsReceived, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestHistoryInsertedTracksEvictions(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.HistoryInserted("inserted", false, 1)
	m.HistoryInserted("inserted", true, 1)
	m.HistoryInserted("duplicate", false, 1)

	if got := testutil.ToFloat64(m.HistoryEvictions); got != 1 {
		t.Errorf("expected 1 eviction, got %v", got)
	}
	if got := testutil.ToFloat64(m.HistorySize); got != 1 {
		t.Errorf("expected size 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.HistoryInserts.WithLabelValues("inserted")); got != 2 {
		t.Errorf("expected 2 inserted, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.EventClassified("note")
	m.EventDropped("duplicate")
	m.SetQueueDepth(3)
	m.HistoryInserted("inserted", true, 1)
	m.ReplyObserved("error", time.Second)
	m.HandlerFailed("insert")
	m.Published("31990", "error")
	m.SetRelaysConnected(0)
}
