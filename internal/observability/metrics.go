package observability

import (
	"sync/atomic"
	"time"
)

// Metrics collects process-local counters for the event pipeline. All
// reads are lock-free so the health endpoint can snapshot them in O(1)
// without touching the dispatch loop.
type Metrics struct {
	eventsReceived  atomic.Int64
	eventsProcessed atomic.Int64
	eventsFailed    atomic.Int64
	handoffTimeouts atomic.Int64
	degradedEntries atomic.Int64

	startTime time.Time
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordReceived records an inbound event accepted by the bridge.
func (m *Metrics) RecordReceived() { m.eventsReceived.Add(1) }

// RecordProcessed records an event fully handled by the dispatch loop.
func (m *Metrics) RecordProcessed() { m.eventsProcessed.Add(1) }

// RecordFailed records an event the bridge rejected before it reached
// the dispatch loop, such as a full queue or the waiter cap.
func (m *Metrics) RecordFailed() { m.eventsFailed.Add(1) }

// RecordHandoffTimeout records a listener that gave up waiting on the loop.
func (m *Metrics) RecordHandoffTimeout() { m.handoffTimeouts.Add(1) }

// RecordDegraded records an extraction served by the fallback tier after
// a model-tier failure.
func (m *Metrics) RecordDegraded() { m.degradedEntries.Add(1) }

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		EventsReceived:  m.eventsReceived.Load(),
		EventsProcessed: m.eventsProcessed.Load(),
		EventsFailed:    m.eventsFailed.Load(),
		HandoffTimeouts: m.handoffTimeouts.Load(),
		DegradedEntries: m.degradedEntries.Load(),
		UptimeSeconds:   int64(time.Since(m.startTime).Seconds()),
	}
}

// MetricsSnapshot is a point-in-time copy of the pipeline counters.
type MetricsSnapshot struct {
	EventsReceived  int64 `json:"events_received"`
	EventsProcessed int64 `json:"events_processed"`
	EventsFailed    int64 `json:"events_failed"`
	HandoffTimeouts int64 `json:"handoff_timeouts"`
	DegradedEntries int64 `json:"degraded_entries"`
	UptimeSeconds   int64 `json:"uptime_seconds"`
}
