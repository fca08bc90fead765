// Package stability drives long-running soak measurements: it samples
// throughput and process memory at fixed intervals and, when the run ends,
// judges whether memory leaked or throughput degraded.
package stability

import (
	"sync"
	"sync/atomic"
	"time"

	"kvbench/internal/metrics"
)

// Config controls a stability run
type Config struct {
	Duration                    time.Duration
	ThroughputSampleInterval    time.Duration
	MemoryCheckInterval         time.Duration
	MemoryLeakThresholdPercent  float64
	DegradationThresholdPercent float64
}

// DefaultConfig samples throughput every 10s and memory every 60s, flagging
// a leak above 50% growth and degradation above a 20% drop.
func DefaultConfig() Config {
	return Config{
		Duration:                    time.Hour,
		ThroughputSampleInterval:    10 * time.Second,
		MemoryCheckInterval:         60 * time.Second,
		MemoryLeakThresholdPercent:  50,
		DegradationThresholdPercent: 20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Duration <= 0 {
		c.Duration = def.Duration
	}
	if c.ThroughputSampleInterval <= 0 {
		c.ThroughputSampleInterval = def.ThroughputSampleInterval
	}
	if c.MemoryCheckInterval <= 0 {
		c.MemoryCheckInterval = def.MemoryCheckInterval
	}
	if c.MemoryLeakThresholdPercent <= 0 {
		c.MemoryLeakThresholdPercent = def.MemoryLeakThresholdPercent
	}
	if c.DegradationThresholdPercent <= 0 {
		c.DegradationThresholdPercent = def.DegradationThresholdPercent
	}
	return c
}

// MemorySnapshot is one memory reading plus the throughput observed since
// the previous snapshot
type MemorySnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	CurrentBytes  uint64    `json:"current_bytes"`
	PeakBytes     uint64    `json:"peak_bytes"`
	Allocations   uint64    `json:"allocations"`
	Deallocations uint64    `json:"deallocations"`
	Throughput    float64   `json:"throughput_ops_sec"`
}

// Result is computed once, by Stop
type Result struct {
	Duration         time.Duration       `json:"duration"`
	Summary          metrics.Summary     `json:"summary"`
	Throughput       ThroughputStats     `json:"throughput"`
	ThroughputTrace  []float64           `json:"throughput_samples"`
	Snapshots        []MemorySnapshot    `json:"memory_snapshots"`
	SkippedSnapshots int                 `json:"skipped_snapshots"`
	Leak             LeakAnalysis        `json:"memory_leak"`
	Degradation      DegradationAnalysis `json:"throughput_degradation"`
}

// MemoryLeakDetected reports the leak verdict
func (r Result) MemoryLeakDetected() bool { return r.Leak.Detected }

// ThroughputDegradationDetected reports the degradation verdict
func (r Result) ThroughputDegradationDetected() bool { return r.Degradation.Detected }

// Passed is true when neither a leak nor degradation was found
func (r Result) Passed() bool {
	return !r.Leak.Detected && !r.Degradation.Detected
}

// Analyzer is safe for concurrent use. RecordOperation is the hot path: it
// records into the collector and only takes the sampling lock when a sample
// is due.
type Analyzer struct {
	cfg   Config
	probe MemoryProbe
	now   func() time.Time
	name  string

	metrics *metrics.Metrics

	startNanos      atomic.Int64
	nextSampleNanos atomic.Int64
	nextMemoryNanos atomic.Int64

	mu            sync.Mutex
	lastSampleAt  time.Time
	lastSampleOps uint64
	lastMemoryAt  time.Time
	lastMemoryOps uint64
	samples       []float64
	snapshots     []MemorySnapshot
	skipped       int
	stopped       bool
	result        Result
}

// Option customizes an Analyzer
type Option func(*Analyzer)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// WithName labels the result summary
func WithName(name string) Option {
	return func(a *Analyzer) { a.name = name }
}

// New creates an analyzer. probe may be nil, in which case no memory
// snapshots are taken.
func New(cfg Config, probe MemoryProbe, opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg:   cfg.withDefaults(),
		probe: probe,
		now:   time.Now,
		name:  "stability",
	}
	for _, opt := range opts {
		opt(a)
	}
	a.metrics = metrics.NewWithClock(a.now)
	return a
}

// Start begins the run and takes the baseline memory snapshot
func (a *Analyzer) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	a.metrics.StartAt(now)
	a.startNanos.Store(now.UnixNano())
	a.lastSampleAt = now
	a.lastMemoryAt = now
	a.nextSampleNanos.Store(now.Add(a.cfg.ThroughputSampleInterval).UnixNano())
	a.nextMemoryNanos.Store(now.Add(a.cfg.MemoryCheckInterval).UnixNano())
	a.captureMemoryLocked(now)
}

// RecordOperation records one outcome and takes any sample that has come due
func (a *Analyzer) RecordOperation(success bool, latencyUs uint64) {
	a.metrics.Record(success, latencyUs)
	a.Poll()
}

// Poll takes any sample that has come due without recording an operation.
// Drivers call it from a ticker so that a stalled target still yields
// samples.
func (a *Analyzer) Poll() {
	now := a.now()
	n := now.UnixNano()
	if n < a.nextSampleNanos.Load() && n < a.nextMemoryNanos.Load() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || a.startNanos.Load() == 0 {
		return
	}

	for n >= a.nextSampleNanos.Load() {
		a.sampleThroughputLocked(now)
		a.nextSampleNanos.Add(int64(a.cfg.ThroughputSampleInterval))
	}
	if n >= a.nextMemoryNanos.Load() {
		a.captureMemoryLocked(now)
		for n >= a.nextMemoryNanos.Load() {
			a.nextMemoryNanos.Add(int64(a.cfg.MemoryCheckInterval))
		}
	}
}

func (a *Analyzer) sampleThroughputLocked(now time.Time) {
	ops := a.metrics.SuccessfulOps()
	elapsed := now.Sub(a.lastSampleAt)
	if elapsed <= 0 {
		return
	}
	a.samples = append(a.samples, rate(ops-a.lastSampleOps, elapsed))
	a.lastSampleAt = now
	a.lastSampleOps = ops
}

func (a *Analyzer) captureMemoryLocked(now time.Time) {
	if a.probe == nil {
		return
	}
	reading, err := a.probe.Read()
	if err != nil {
		a.skipped++
		return
	}

	ops := a.metrics.SuccessfulOps()
	a.snapshots = append(a.snapshots, MemorySnapshot{
		Timestamp:     now,
		CurrentBytes:  reading.CurrentBytes,
		PeakBytes:     reading.PeakBytes,
		Allocations:   reading.Allocations,
		Deallocations: reading.Deallocations,
		Throughput:    rate(ops-a.lastMemoryOps, now.Sub(a.lastMemoryAt)),
	})
	a.lastMemoryAt = now
	a.lastMemoryOps = ops
}

// Elapsed returns the time since Start
func (a *Analyzer) Elapsed() time.Duration {
	start := a.startNanos.Load()
	if start == 0 {
		return 0
	}
	return time.Duration(a.now().UnixNano() - start)
}

// IsComplete reports whether the configured duration has elapsed
func (a *Analyzer) IsComplete() bool {
	return a.startNanos.Load() != 0 && a.Elapsed() >= a.cfg.Duration
}

// Metrics is the overall collector for the run
func (a *Analyzer) Metrics() *metrics.Metrics { return a.metrics }

// Config returns the effective configuration
func (a *Analyzer) Config() Config { return a.cfg }

// Stop ends the run, takes a closing memory snapshot and analyzes
// everything collected. Call it after all workers have returned. Further
// calls return the same result.
func (a *Analyzer) Stop() Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return a.result
	}
	a.stopped = true

	now := a.now()
	a.metrics.StopAt(now)
	if a.startNanos.Load() != 0 && now.After(a.lastMemoryAt) {
		a.captureMemoryLocked(now)
	}

	a.result = Result{
		Duration:         a.metrics.Duration(),
		Summary:          a.metrics.Summarize(a.name, metrics.OperationOverall),
		Throughput:       SummarizeThroughput(a.samples),
		ThroughputTrace:  append([]float64(nil), a.samples...),
		Snapshots:        append([]MemorySnapshot(nil), a.snapshots...),
		SkippedSnapshots: a.skipped,
		Leak:             DetectLeak(a.snapshots, a.cfg.MemoryLeakThresholdPercent),
		Degradation:      DetectDegradation(a.samples, a.cfg.DegradationThresholdPercent),
	}
	return a.result
}
