package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the agent's Prometheus metrics.
//
// It tracks:
//   - inbound events by category and events dropped before dispatch
//   - the hand-off queue depth and the history buffer size
//   - replies and announcements published, with latency
//   - handler errors by route and connected relays
//
// All methods are safe to call on a nil *Metrics.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.EventClassified("note")
//	metrics.ReplyObserved("success", time.Since(start))
type Metrics struct {
	// EventsReceived counts events reaching the dispatcher.
	// Labels: category (note|service_request|direct_message|other)
	EventsReceived *prometheus.CounterVec

	// EventsDropped counts events discarded before dispatch.
	// Labels: reason (queue_full|duplicate|invalid_signature)
	EventsDropped *prometheus.CounterVec

	// QueueDepth is the number of events waiting for the dispatcher.
	QueueDepth prometheus.Gauge

	// HistorySize is the number of notes currently buffered.
	HistorySize prometheus.Gauge

	// HistoryInserts counts buffer insert outcomes.
	// Labels: outcome (inserted|duplicate|rejected)
	HistoryInserts *prometheus.CounterVec

	// HistoryEvictions counts notes evicted from the buffer tail.
	HistoryEvictions prometheus.Counter

	// Replies counts job results by status.
	// Labels: status (success|error)
	Replies *prometheus.CounterVec

	// ReplyDuration measures reply construction, signing and publishing in seconds.
	ReplyDuration prometheus.Histogram

	// HandlerErrors counts handler failures by route.
	HandlerErrors *prometheus.CounterVec

	// Publishes counts relay publish attempts.
	// Labels: kind, status (success|error|unavailable)
	Publishes *prometheus.CounterVec

	// RelaysConnected is the number of relays with a live connection.
	RelaysConnected prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg.
// A nil reg creates unregistered collectors, which is useful in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notedvm_events_received_total",
				Help: "Total number of events dispatched by category",
			},
			[]string{"category"},
		),

		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notedvm_events_dropped_total",
				Help: "Total number of inbound events dropped before dispatch by reason",
			},
			[]string{"reason"},
		),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "notedvm_queue_depth",
			Help: "Number of events waiting in the hand-off queue",
		}),

		HistorySize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "notedvm_history_size",
			Help: "Number of notes held in the history buffer",
		}),

		HistoryInserts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notedvm_history_inserts_total",
				Help: "Total number of history buffer inserts by outcome",
			},
			[]string{"outcome"},
		),

		HistoryEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "notedvm_history_evictions_total",
			Help: "Total number of notes evicted from the history buffer",
		}),

		Replies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notedvm_replies_total",
				Help: "Total number of job results by status",
			},
			[]string{"status"},
		),

		ReplyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "notedvm_reply_duration_seconds",
			Help:    "Duration of reply construction and publishing in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),

		HandlerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notedvm_handler_errors_total",
				Help: "Total number of dispatcher handler errors by route",
			},
			[]string{"route"},
		),

		Publishes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notedvm_publishes_total",
				Help: "Total number of relay publishes by event kind and status",
			},
			[]string{"kind", "status"},
		),

		RelaysConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "notedvm_relays_connected",
			Help: "Number of relays with a live connection",
		}),
	}
}

// EventClassified records an event reaching the dispatcher.
func (m *Metrics) EventClassified(category string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(category).Inc()
}

// EventDropped records an event discarded before dispatch.
func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(reason).Inc()
}

// SetQueueDepth records the current hand-off queue length.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// HistoryInserted records a buffer insert and the resulting size.
func (m *Metrics) HistoryInserted(outcome string, evicted bool, size int) {
	if m == nil {
		return
	}
	m.HistoryInserts.WithLabelValues(outcome).Inc()
	if evicted {
		m.HistoryEvictions.Inc()
	}
	m.HistorySize.Set(float64(size))
}

// ReplyObserved records a finished reply attempt.
func (m *Metrics) ReplyObserved(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Replies.WithLabelValues(status).Inc()
	m.ReplyDuration.Observe(duration.Seconds())
}

// HandlerFailed records a handler error for route.
func (m *Metrics) HandlerFailed(route string) {
	if m == nil {
		return
	}
	m.HandlerErrors.WithLabelValues(route).Inc()
}

// Published records a relay publish attempt.
func (m *Metrics) Published(kind, status string) {
	if m == nil {
		return
	}
	m.Publishes.WithLabelValues(kind, status).Inc()
}

// SetRelaysConnected records the number of live relay connections.
func (m *Metrics) SetRelaysConnected(n int) {
	if m == nil {
		return
	}
	m.RelaysConnected.Set(float64(n))
}
