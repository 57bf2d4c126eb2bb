package pcissd

import "sync/atomic"

// LatencyBuckets defines the completion-latency histogram buckets in
// simulated internal-clock cycles, log-spaced since latency distributions
// in a pipeline like this one span several orders of magnitude.
var LatencyBuckets = []uint64{
	10,
	100,
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks simulated I/O statistics for a System. Every field is an
// atomic counter so a Metrics can be read from a concurrently running
// reporter goroutine even though System.Update itself is single-threaded.
type Metrics struct {
	ReadOps  atomic.Uint64
	WriteOps atomic.Uint64

	ReadErrors  atomic.Uint64
	WriteErrors atomic.Uint64

	TotalLatencyCycles atomic.Uint64
	OpCount            atomic.Uint64

	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32
}

// NewMetrics returns a zeroed Metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRead records a completed read's latency in internal-clock cycles.
func (m *Metrics) RecordRead(cycles uint64, success bool) {
	m.ReadOps.Add(1)
	if !success {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(cycles)
}

// RecordWrite records a completed write's latency in internal-clock cycles.
func (m *Metrics) RecordWrite(cycles uint64, success bool) {
	m.WriteOps.Add(1)
	if !success {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(cycles)
}

// RecordQueueDepth folds one depth sample into the running average/max,
// sampled once per System.Update call.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)
	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(cycles uint64) {
	m.TotalLatencyCycles.Add(cycles)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if cycles <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// MetricsSnapshot is a point-in-time read of Metrics.
type MetricsSnapshot struct {
	ReadOps  uint64
	WriteOps uint64

	ReadErrors  uint64
	WriteErrors uint64

	TotalOps uint64

	AvgLatencyCycles uint64
	AvgQueueDepth    float64
	MaxQueueDepth    uint32

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot computes derived statistics from the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ReadOps:       m.ReadOps.Load(),
		WriteOps:      m.WriteOps.Load(),
		ReadErrors:    m.ReadErrors.Load(),
		WriteErrors:   m.WriteErrors.Load(),
		MaxQueueDepth: m.MaxQueueDepth.Load(),
	}
	snap.TotalOps = snap.ReadOps + snap.WriteOps

	if opCount := m.OpCount.Load(); opCount > 0 {
		snap.AvgLatencyCycles = m.TotalLatencyCycles.Load() / opCount
	}
	if count := m.QueueDepthCount.Load(); count > 0 {
		snap.AvgQueueDepth = float64(m.QueueDepthTotal.Load()) / float64(count)
	}
	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}
	return snap
}

// Reset zeroes all counters, useful between test scenarios.
func (m *Metrics) Reset() {
	*m = Metrics{}
}

// Observer is the pluggable sink for simulated completion events,
// implementing internal/interfaces.Observer.
type Observer interface {
	ObserveRead(cycles uint64, success bool)
	ObserveWrite(cycles uint64, success bool)
	ObserveQueueDepth(depth uint32)
}

// NoOpObserver discards everything; it is System's default when no
// Observer option is supplied.
type NoOpObserver struct{}

func (NoOpObserver) ObserveRead(uint64, bool)    {}
func (NoOpObserver) ObserveWrite(uint64, bool)   {}
func (NoOpObserver) ObserveQueueDepth(uint32)    {}

// MetricsObserver routes observed events into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver returns an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRead(cycles uint64, success bool)  { o.metrics.RecordRead(cycles, success) }
func (o *MetricsObserver) ObserveWrite(cycles uint64, success bool) { o.metrics.RecordWrite(cycles, success) }
func (o *MetricsObserver) ObserveQueueDepth(depth uint32)           { o.metrics.RecordQueueDepth(depth) }

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = NoOpObserver{}
)
