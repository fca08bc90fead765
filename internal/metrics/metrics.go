// Package metrics collects per-operation counts and latency samples from many
// concurrent workers and derives throughput, averages, percentiles and
// histograms once the run has quiesced.
package metrics

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics accumulates the outcome of every operation of one kind (or of all
// kinds). Counters and extrema are lock-free; the latency sample slice is
// appended under mu, one acquisition per successful operation.
//
// Percentile and Histogram sort the sample slice in place and cache the sorted
// state. They hold mu while doing so, but callers should still wait for all
// writers to finish before reading a report: a percentile taken mid-run only
// reflects the samples appended so far.
type Metrics struct {
	totalOps      atomic.Uint64
	successfulOps atomic.Uint64
	failedOps     atomic.Uint64
	latencySum    atomic.Uint64
	minLatency    atomic.Uint64
	maxLatency    atomic.Uint64

	startNanos atomic.Int64
	stopNanos  atomic.Int64

	mu        sync.Mutex
	latencies []uint64
	sorted    bool

	now func() time.Time
}

// New creates an empty collector. It is not started.
func New() *Metrics {
	return NewWithClock(time.Now)
}

// NewWithClock creates a collector that reads wall-clock time from now
func NewWithClock(now func() time.Time) *Metrics {
	if now == nil {
		now = time.Now
	}
	m := &Metrics{now: now}
	m.minLatency.Store(math.MaxUint64)
	return m
}

// Start records the beginning of the measured interval
func (m *Metrics) Start() {
	m.StartAt(m.now())
}

// StartAt records an explicit start time
func (m *Metrics) StartAt(t time.Time) {
	m.startNanos.Store(t.UnixNano())
	m.stopNanos.Store(0)
}

// Stop records the end of the measured interval
func (m *Metrics) Stop() {
	m.StopAt(m.now())
}

// StopAt records an explicit stop time
func (m *Metrics) StopAt(t time.Time) {
	m.stopNanos.Store(t.UnixNano())
}

// RecordSuccess counts a successful operation and keeps its latency sample
func (m *Metrics) RecordSuccess(latencyUs uint64) {
	m.mu.Lock()
	m.latencies = append(m.latencies, latencyUs)
	m.sorted = false
	m.mu.Unlock()

	m.latencySum.Add(latencyUs)
	updateMin(&m.minLatency, latencyUs)
	updateMax(&m.maxLatency, latencyUs)
	m.successfulOps.Add(1)
	m.totalOps.Add(1)
}

// RecordFailure counts a failed operation. Failures carry no latency sample.
func (m *Metrics) RecordFailure() {
	m.failedOps.Add(1)
	m.totalOps.Add(1)
}

// Record routes an outcome to RecordSuccess or RecordFailure
func (m *Metrics) Record(success bool, latencyUs uint64) {
	if success {
		m.RecordSuccess(latencyUs)
	} else {
		m.RecordFailure()
	}
}

func updateMin(v *atomic.Uint64, candidate uint64) {
	for {
		current := v.Load()
		if candidate >= current {
			return
		}
		if v.CompareAndSwap(current, candidate) {
			return
		}
	}
}

func updateMax(v *atomic.Uint64, candidate uint64) {
	for {
		current := v.Load()
		if candidate <= current {
			return
		}
		if v.CompareAndSwap(current, candidate) {
			return
		}
	}
}

// TotalOps returns successful plus failed operations
func (m *Metrics) TotalOps() uint64 { return m.totalOps.Load() }

// SuccessfulOps returns the number of successful operations
func (m *Metrics) SuccessfulOps() uint64 { return m.successfulOps.Load() }

// FailedOps returns the number of failed operations
func (m *Metrics) FailedOps() uint64 { return m.failedOps.Load() }

// MinLatency returns the smallest recorded latency, or 0 with no samples
func (m *Metrics) MinLatency() uint64 {
	v := m.minLatency.Load()
	if v == math.MaxUint64 {
		return 0
	}
	return v
}

// MaxLatency returns the largest recorded latency
func (m *Metrics) MaxLatency() uint64 { return m.maxLatency.Load() }

// Duration returns the measured interval. While running it is measured up to
// now; before Start it is zero.
func (m *Metrics) Duration() time.Duration {
	start := m.startNanos.Load()
	if start == 0 {
		return 0
	}
	end := m.stopNanos.Load()
	if end == 0 {
		end = m.now().UnixNano()
	}
	if end <= start {
		return 0
	}
	return time.Duration(end - start)
}

// DurationMs returns Duration in whole milliseconds
func (m *Metrics) DurationMs() int64 {
	return m.Duration().Milliseconds()
}

// Throughput returns successful operations per second, 0 for an empty interval
func (m *Metrics) Throughput() float64 {
	secs := m.Duration().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(m.SuccessfulOps()) / secs
}

// AvgLatency returns the mean latency of successful operations in microseconds
func (m *Metrics) AvgLatency() float64 {
	n := m.SuccessfulOps()
	if n == 0 {
		return 0
	}
	return float64(m.latencySum.Load()) / float64(n)
}

// ErrorRate returns failed/total as a percentage
func (m *Metrics) ErrorRate() float64 {
	total := m.TotalOps()
	if total == 0 {
		return 0
	}
	return float64(m.FailedOps()) / float64(total) * 100
}

// Percentile returns the sample at index floor(len*p), clamped to the last
// sample. p is a fraction in [0, 1]. Returns 0 with no samples.
func (m *Metrics) Percentile(p float64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0
	}
	m.sortLocked()
	return m.latencies[percentileIndex(len(m.latencies), p)]
}

// Percentiles answers several percentile queries with one sort
func (m *Metrics) Percentiles(ps ...float64) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]uint64, len(ps))
	if len(m.latencies) == 0 {
		return out
	}
	m.sortLocked()
	for i, p := range ps {
		out[i] = m.latencies[percentileIndex(len(m.latencies), p)]
	}
	return out
}

func percentileIndex(n int, p float64) int {
	if p <= 0 || math.IsNaN(p) {
		return 0
	}
	idx := int(math.Floor(float64(n) * p))
	if idx >= n {
		idx = n - 1
	}
	return idx
}

func (m *Metrics) sortLocked() {
	if m.sorted {
		return
	}
	slices.Sort(m.latencies)
	m.sorted = true
}

// SampleCount returns how many latency samples are held
func (m *Metrics) SampleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.latencies)
}

// Histogram buckets every sample using DefaultBucketBounds
func (m *Metrics) Histogram() []HistogramBucket {
	return m.HistogramWithBounds(DefaultBucketBounds)
}

// HistogramWithBounds buckets every sample using the given ascending upper
// bounds plus a trailing overflow bucket.
func (m *Metrics) HistogramWithBounds(bounds []uint64) []HistogramBucket {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sortLocked()
	return buildHistogram(m.latencies, bounds)
}
