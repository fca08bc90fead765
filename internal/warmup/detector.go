// Package warmup separates the warmup phase of a run from the measured phase
// and decides when windowed throughput has settled into a steady state.
package warmup

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"kvbench/internal/metrics"
)

// Phase is the detector state
type Phase int

const (
	// PhaseWarmingUp is the initial state. Operations recorded in it are
	// kept out of the final report.
	PhaseWarmingUp Phase = iota
	// PhaseMeasuring is terminal
	PhaseMeasuring
)

func (p Phase) String() string {
	if p == PhaseMeasuring {
		return "measuring"
	}
	return "warming_up"
}

// Config controls the warmup exit and the steady-state test. A zero WarmupOps
// or WarmupDuration disables that trigger; with both disabled the detector
// starts in PhaseMeasuring.
type Config struct {
	WarmupOps      uint64
	WarmupDuration time.Duration
	Window         time.Duration
	WindowCount    int
	CVThreshold    float64
}

// DefaultConfig returns 1s windows, a ten-window steady-state test and a 5%
// coefficient of variation threshold. No warmup trigger is set.
func DefaultConfig() Config {
	return Config{
		Window:      time.Second,
		WindowCount: 10,
		CVThreshold: 0.05,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.WindowCount <= 0 {
		c.WindowCount = def.WindowCount
	}
	if c.CVThreshold <= 0 {
		c.CVThreshold = def.CVThreshold
	}
	return c
}

// Detector is safe for concurrent use by every worker of a run. Once
// measuring, RecordOperation only touches atomics and takes the lock when a
// window boundary has passed; latencies of measured operations are left to
// the caller's collector.
type Detector struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	started     bool
	startedAt   time.Time
	measuring   atomic.Bool
	warmupCount uint64
	measuredAt  time.Time
	done        chan struct{}

	warmup *metrics.Metrics

	measuredOps   atomic.Uint64
	windowSuccess atomic.Uint64
	windowEnd     atomic.Int64 // UnixNano of the open window's end
	windowStart   time.Time
	history       []float64

	steady           bool
	steadyAt         time.Time
	steadyThroughput float64
}

// New creates a detector reading wall-clock time
func New(cfg Config) *Detector {
	return NewWithClock(cfg, time.Now)
}

// NewWithClock creates a detector reading time from now
func NewWithClock(cfg Config, now func() time.Time) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{
		cfg:    cfg.withDefaults(),
		now:    now,
		done:   make(chan struct{}),
		warmup: metrics.NewWithClock(now),
	}
}

// Start begins the warmup clock. RecordOperation calls it implicitly on first
// use; calling it again has no effect.
func (d *Detector) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startLocked(d.now())
}

func (d *Detector) startLocked(now time.Time) {
	if d.started {
		return
	}
	d.started = true
	d.startedAt = now
	d.warmup.StartAt(now)
	if d.cfg.WarmupOps == 0 && d.cfg.WarmupDuration <= 0 {
		d.enterMeasuringLocked(now)
	}
}

func (d *Detector) enterMeasuringLocked(now time.Time) {
	d.measuredAt = now
	d.warmup.StopAt(now)
	d.windowStart = now
	d.windowEnd.Store(now.Add(d.cfg.Window).UnixNano())
	d.measuring.Store(true)
	close(d.done)
}

// RecordOperation attributes one outcome to the current phase and reports
// whether it was a warmup operation. The operation that reaches WarmupOps is
// still a warmup operation; the next one is measured.
func (d *Detector) RecordOperation(success bool, latencyUs uint64) bool {
	if d.measuring.Load() {
		d.recordMeasured(success)
		return false
	}

	d.mu.Lock()
	now := d.now()
	d.startLocked(now)
	if !d.measuring.Load() {
		if !d.durationReachedLocked(now) {
			d.warmupCount++
			d.warmup.Record(success, latencyUs)
			if d.cfg.WarmupOps > 0 && d.warmupCount >= d.cfg.WarmupOps {
				d.enterMeasuringLocked(now)
			}
			d.mu.Unlock()
			return true
		}
		d.enterMeasuringLocked(now)
	}
	d.mu.Unlock()

	d.recordMeasured(success)
	return false
}

func (d *Detector) recordMeasured(success bool) {
	now := d.now()
	if now.UnixNano() >= d.windowEnd.Load() {
		d.mu.Lock()
		d.closeWindowsLocked(now)
		d.mu.Unlock()
	}
	d.measuredOps.Add(1)
	if success {
		d.windowSuccess.Add(1)
	}
}

// Tick closes any elapsed windows and applies the duration trigger without
// recording an operation. Drivers call it periodically so that idle periods
// still produce windows.
func (d *Detector) Tick() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return
	}
	now := d.now()
	if !d.measuring.Load() {
		if !d.durationReachedLocked(now) {
			return
		}
		d.enterMeasuringLocked(now)
	}
	d.closeWindowsLocked(now)
}

func (d *Detector) durationReachedLocked(now time.Time) bool {
	return d.cfg.WarmupDuration > 0 && now.Sub(d.startedAt) >= d.cfg.WarmupDuration
}

func (d *Detector) closeWindowsLocked(now time.Time) {
	closed := false
	for now.Sub(d.windowStart) >= d.cfg.Window {
		successes := d.windowSuccess.Swap(0)
		d.history = append(d.history, float64(successes)/d.cfg.Window.Seconds())
		d.windowStart = d.windowStart.Add(d.cfg.Window)
		d.evaluateLocked()
		closed = true
	}
	if closed {
		d.windowEnd.Store(d.windowStart.Add(d.cfg.Window).UnixNano())
	}
}

func (d *Detector) evaluateLocked() {
	if d.steady || len(d.history) < d.cfg.WindowCount {
		return
	}
	mean, cv := meanAndCV(d.history[len(d.history)-d.cfg.WindowCount:])
	if mean > 0 && cv < d.cfg.CVThreshold {
		d.steady = true
		d.steadyAt = d.windowStart
		d.steadyThroughput = mean
	}
}

// meanAndCV returns the mean and population coefficient of variation. The
// CV is +Inf for a zero mean.
func meanAndCV(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, math.Inf(1)
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0, math.Inf(1)
	}
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq/float64(len(values))) / mean
}

// Phase returns the current state
func (d *Detector) Phase() Phase {
	if d.measuring.Load() {
		return PhaseMeasuring
	}
	return PhaseWarmingUp
}

// IsWarmupComplete reports whether the detector has left the warmup phase
func (d *Detector) IsWarmupComplete() bool {
	return d.Phase() == PhaseMeasuring
}

// Done is closed exactly once, when warmup completes
func (d *Detector) Done() <-chan struct{} {
	return d.done
}

// MeasuringSince returns when measuring began, or the zero time
func (d *Detector) MeasuringSince() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.measuredAt
}

// IsSteadyState reports whether steady state has been declared. Once true it
// stays true.
func (d *Detector) IsSteadyState() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.steady
}

// SteadyStateThroughput returns the mean throughput of the trailing windows
// that satisfied the steady-state test. ok is false until then.
func (d *Detector) SteadyStateThroughput() (throughput float64, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.steadyThroughput, d.steady
}

// SteadyStateAt returns the window boundary at which steady state was
// declared, or the zero time.
func (d *Detector) SteadyStateAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.steadyAt
}

// WindowThroughputs returns a copy of every closed window's throughput
func (d *Detector) WindowThroughputs() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float64(nil), d.history...)
}

// WarmupOps returns how many operations were attributed to warmup
func (d *Detector) WarmupOps() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.warmupCount
}

// WarmupMetrics is the collector for discarded warmup operations
func (d *Detector) WarmupMetrics() *metrics.Metrics { return d.warmup }

// MeasuredOps returns how many operations were recorded after warmup
func (d *Detector) MeasuredOps() uint64 { return d.measuredOps.Load() }

// Stop closes the warmup collector if the run ended before warmup did
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.measuring.Load() {
		d.warmup.StopAt(d.now())
	}
}
