package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	journaled   *prometheus.CounterVec
	failures    prometheus.Counter
	subscribers prometheus.Gauge
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking the ledger event journal.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			journaled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftstake",
				Subsystem: "events",
				Name:      "journaled_total",
				Help:      "Count of ledger events appended to the journal segmented by type.",
			}, []string{"type"}),
			failures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nftstake",
				Subsystem: "events",
				Name:      "journal_failures_total",
				Help:      "Committed ledger events that could not be appended to the journal.",
			}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nftstake",
				Subsystem: "events",
				Name:      "stream_subscribers",
				Help:      "Open websocket event stream subscriptions.",
			}),
		}
		prometheus.MustRegister(eventRegistry.journaled, eventRegistry.failures, eventRegistry.subscribers)
	})
	return eventRegistry
}

// RecordEvent increments the journal counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.journaled.WithLabelValues(normalized).Inc()
}

// RecordFailure counts an event lost between commit and the journal.
func (m *eventMetrics) RecordFailure() {
	if m == nil {
		return
	}
	m.failures.Inc()
}

// Subscribed adjusts the stream subscriber gauge.
func (m *eventMetrics) Subscribed(delta int) {
	if m == nil {
		return
	}
	m.subscribers.Add(float64(delta))
}
