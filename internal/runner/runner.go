// Package runner drives a workload against a target executor: it loads the
// initial records, runs the operation mix across a pool of workers and feeds
// every outcome to the metrics, warmup and stability components.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"kvbench/internal/config"
	"kvbench/internal/logging"
	"kvbench/internal/metrics"
	"kvbench/internal/stability"
	"kvbench/internal/target"
	"kvbench/internal/tracing"
	"kvbench/internal/warmup"
	"kvbench/internal/workload"
)

// LoadBatchSize is the number of records sent per batch when the executor
// supports batched inserts
const LoadBatchSize = 256

// Phase names reported by Progress
const (
	PhaseIdle      = "idle"
	PhaseLoad      = "load"
	PhaseWarmup    = "warmup"
	PhaseRun       = "run"
	PhaseStability = "stability"
	PhaseDone      = "done"
)

// Runner is single-use per phase: Load, Run and RunStability must not
// overlap.
type Runner struct {
	cfg    *config.Config
	def    workload.Definition
	exec   target.Executor
	logger *logging.Logger
	runID  string
	now    func() time.Time
	probe  stability.MemoryProbe
	tracer *tracing.Service

	inserted atomic.Uint64
	issued   atomic.Uint64
	live     atomic.Pointer[liveState]
}

// liveState is what monitoring may read while a phase is in flight
type liveState struct {
	phase    string
	tracker  *metrics.Tracker
	overall  *metrics.Metrics
	detector *warmup.Detector
	analyzer *stability.Analyzer
}

// Option customizes a Runner
type Option func(*Runner)

// WithRunID overrides the generated run ID
func WithRunID(id string) Option {
	return func(r *Runner) {
		if id = logging.SanitizeRunID(id); id != "" {
			r.runID = id
		}
	}
}

// WithClock replaces the wall clock used for measured intervals. Operation
// latencies are always measured on the monotonic wall clock.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMemoryProbe replaces the probe used by RunStability
func WithMemoryProbe(probe stability.MemoryProbe) Option {
	return func(r *Runner) { r.probe = probe }
}

// WithTracing records a span per phase and wraps the executor so that
// operations are traced at the service's sampling ratio
func WithTracing(svc *tracing.Service) Option {
	return func(r *Runner) { r.tracer = svc }
}

// New validates the workload definition and prepares a runner. The executor
// stays owned by the caller.
func New(cfg *config.Config, exec target.Executor, logger *logging.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("runner: nil config")
	}
	if exec == nil {
		return nil, errors.New("runner: nil executor")
	}
	def, err := cfg.WorkloadDefinition()
	if err != nil {
		return nil, fmt.Errorf("resolve workload: %w", err)
	}
	if cfg.Workload.RecordCount == 0 {
		return nil, errors.New("runner: record_count must be positive")
	}

	r := &Runner{
		cfg:    cfg,
		def:    def,
		exec:   exec,
		logger: logger,
		runID:  logging.GenerateRunID(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NewLogger(&cfg.Logging)
	}
	if r.tracer == nil {
		r.tracer = tracing.Disabled()
	}
	r.exec = r.tracer.InstrumentExecutor(exec)
	r.inserted.Store(cfg.Workload.RecordCount)
	r.live.Store(&liveState{phase: PhaseIdle})
	return r, nil
}

// RunID identifies this runner in logs and reports
func (r *Runner) RunID() string { return r.runID }

// Definition returns the resolved workload
func (r *Runner) Definition() workload.Definition { return r.def }

func (r *Runner) keyCount() uint64 { return r.inserted.Load() }

func (r *Runner) nextInsert() uint64 { return r.inserted.Add(1) - 1 }

func (r *Runner) context(ctx context.Context, phase string) context.Context {
	ctx = logging.WithRun(ctx, r.runID, r.def.Name)
	return logging.WithPhase(ctx, phase)
}

func (r *Runner) limiter() *rate.Limiter {
	if r.cfg.Workload.TargetOpsPerSec <= 0 {
		return nil
	}
	burst := r.cfg.Workload.Threads
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(r.cfg.Workload.TargetOpsPerSec), burst)
}

// Load inserts records [0, record_count) split across the configured
// threads. Executors that implement target.BatchInserter receive batches of
// LoadBatchSize; the batch latency is then spread evenly over its records.
func (r *Runner) Load(ctx context.Context) (*RunReport, error) {
	ctx = r.context(ctx, PhaseLoad)
	ctx, span := r.tracer.StartPhase(ctx, PhaseLoad, r.runID, r.def.Name)
	records := r.cfg.Workload.RecordCount
	threads := r.cfg.Workload.Threads

	tracker := metrics.NewTrackerWithClock(r.now)
	overall := metrics.NewWithClock(r.now)
	r.live.Store(&liveState{phase: PhaseLoad, tracker: tracker, overall: overall})

	r.logger.RunEvent(ctx, "load_started", map[string]interface{}{
		"records": records,
		"threads": threads,
	})

	batcher, batched := r.exec.(target.BatchInserter)
	startedAt := r.now()
	tracker.StartAt(startedAt)
	overall.StartAt(startedAt)

	g, gctx := errgroup.WithContext(ctx)
	per := records / uint64(threads)
	for i := 0; i < threads; i++ {
		from := uint64(i) * per
		to := from + per
		if i == threads-1 {
			to = records
		}
		id := i
		g.Go(func() error {
			src := r.sourceFor(id)
			value := make([]byte, r.cfg.Workload.ValueSize)
			wctx := logging.WithWorker(gctx, id)
			if batched {
				return r.loadBatches(wctx, batcher, src, value, from, to, tracker, overall)
			}
			return r.loadEach(wctx, src, value, from, to, tracker, overall)
		})
	}
	err := g.Wait()

	tracker.Stop()
	overall.Stop()
	r.live.Store(&liveState{phase: PhaseDone, tracker: tracker, overall: overall})

	report := r.buildReport(PhaseLoad, startedAt, tracker, overall, nil)
	r.logger.RunEvent(ctx, "load_finished", map[string]interface{}{
		"records":    overall.SuccessfulOps(),
		"failed":     overall.FailedOps(),
		"throughput": overall.Throughput(),
	})
	if err != nil && !isContextErr(err) {
		err = fmt.Errorf("load: %w", err)
		tracing.EndPhase(span, report.Overall, err)
		return report, err
	}
	tracing.EndPhase(span, report.Overall, nil)
	return report, nil
}

func (r *Runner) loadEach(ctx context.Context, src workload.Source, value []byte, from, to uint64, tracker *metrics.Tracker, overall *metrics.Metrics) error {
	for i := from; i < to; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		workload.FillValue(value, src)
		op := target.Operation{
			Kind:  workload.OpInsert,
			Key:   workload.KeyName(i),
			Value: append([]byte(nil), value...),
		}
		start := time.Now()
		err := r.exec.Execute(ctx, op)
		elapsed := time.Since(start)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		r.record(ctx, op, err, elapsed, tracker, overall)
	}
	return nil
}

func (r *Runner) loadBatches(ctx context.Context, batcher target.BatchInserter, src workload.Source, value []byte, from, to uint64, tracker *metrics.Tracker, overall *metrics.Metrics) error {
	batch := make([]target.Operation, 0, LoadBatchSize)
	for i := from; i < to; i += LoadBatchSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		end := i + LoadBatchSize
		if end > to {
			end = to
		}
		batch = batch[:0]
		for k := i; k < end; k++ {
			workload.FillValue(value, src)
			batch = append(batch, target.Operation{
				Kind:  workload.OpInsert,
				Key:   workload.KeyName(k),
				Value: append([]byte(nil), value...),
			})
		}

		start := time.Now()
		err := batcher.InsertBatch(ctx, batch)
		elapsed := time.Since(start)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		each := elapsed / time.Duration(len(batch))
		for _, op := range batch {
			r.record(ctx, op, err, each, tracker, overall)
		}
	}
	return nil
}

// record routes one outcome to the per-kind and overall collectors
func (r *Runner) record(ctx context.Context, op target.Operation, err error, elapsed time.Duration, tracker *metrics.Tracker, overall *metrics.Metrics) {
	us := uint64(elapsed.Microseconds())
	if err != nil {
		tracker.RecordFailure(op.Kind)
		overall.RecordFailure()
		r.logger.OperationFailure(ctx, op.Kind.String(), op.Key, elapsed, err)
		return
	}
	tracker.RecordSuccess(op.Kind, us)
	overall.RecordSuccess(us)
}

func (r *Runner) warmupConfig() (warmup.Config, bool) {
	w := r.cfg.Warmup
	if !w.Enabled {
		return warmup.Config{}, false
	}
	return warmup.Config{
		WarmupOps:      w.Operations,
		WarmupDuration: w.Duration,
		Window:         w.Window,
		WindowCount:    w.WindowCount,
		CVThreshold:    w.CVThreshold,
	}, true
}

// Run executes the operation mix until operation_count operations have been
// issued, duration has elapsed or ctx is cancelled, whichever comes first.
// Warmup operations count toward operation_count but are left out of the
// report.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	ctx = r.context(ctx, PhaseRun)
	ctx, span := r.tracer.StartPhase(ctx, PhaseRun, r.runID, r.def.Name)
	if d := r.cfg.Workload.Duration; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	tracker := metrics.NewTrackerWithClock(r.now)
	overall := metrics.NewWithClock(r.now)

	var detector *warmup.Detector
	if wcfg, ok := r.warmupConfig(); ok {
		detector = warmup.NewWithClock(wcfg, r.now)
	}

	state := &liveState{phase: PhaseRun, tracker: tracker, overall: overall, detector: detector}
	r.issued.Store(0)
	r.live.Store(state)

	workers, err := r.newWorkers()
	if err != nil {
		tracing.EndPhase(span, metrics.Summary{}, err)
		return nil, err
	}

	r.logger.RunEvent(ctx, "run_started", map[string]interface{}{
		"threads":      len(workers),
		"distribution": string(r.def.Distribution),
		"warmup":       detector != nil,
	})

	startedAt := r.now()
	var startMeasuring sync.Once
	beginMeasuring := func() {
		startMeasuring.Do(func() {
			at := startedAt
			if detector != nil {
				at = detector.MeasuringSince()
			}
			tracker.StartAt(at)
			overall.StartAt(at)
			if detector != nil {
				r.logger.RunEvent(ctx, "warmup_complete", map[string]interface{}{
					"warmup_ops": detector.WarmupOps(),
				})
			}
		})
	}
	if detector != nil {
		detector.Start()
	}
	if detector == nil || detector.IsWarmupComplete() {
		beginMeasuring()
	}

	stopTicker := r.tickDetector(detector)

	limiter := r.limiter()
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			return r.runWorker(logging.WithWorker(gctx, w.id), w, limiter, func(op target.Operation, err error, elapsed time.Duration) {
				if detector != nil {
					if detector.RecordOperation(err == nil, uint64(elapsed.Microseconds())) {
						return
					}
					beginMeasuring()
				}
				r.record(gctx, op, err, elapsed, tracker, overall)
			})
		})
	}
	err = g.Wait()
	stopTicker()

	tracker.Stop()
	overall.Stop()
	if detector != nil {
		detector.Stop()
		if !detector.IsWarmupComplete() {
			r.logger.WarnContext(ctx, "Run ended before warmup completed", "warmup_ops", detector.WarmupOps())
		}
	}
	r.live.Store(&liveState{phase: PhaseDone, tracker: tracker, overall: overall, detector: detector})

	report := r.buildReport(PhaseRun, startedAt, tracker, overall, detector)
	r.logger.RunEvent(ctx, "run_finished", map[string]interface{}{
		"operations": report.Overall.TotalOps,
		"throughput": report.Overall.Throughput,
		"error_rate": report.Overall.ErrorRate,
	})
	r.logger.Performance(ctx, "throughput", report.Overall.Throughput, "ops/sec", map[string]string{"workload": r.def.Name})
	r.logger.Performance(ctx, "p99_latency", float64(report.Overall.P99LatencyUs), "us", map[string]string{"workload": r.def.Name})

	if err != nil && !isContextErr(err) {
		tracing.EndPhase(span, report.Overall, err)
		return report, err
	}
	tracing.EndPhase(span, report.Overall, nil)
	return report, nil
}

// tickDetector closes idle windows once per window so steady-state detection
// keeps moving when operations stall
func (r *Runner) tickDetector(detector *warmup.Detector) func() {
	if detector == nil {
		return func() {}
	}
	interval := r.cfg.Warmup.Window
	if interval <= 0 {
		interval = warmup.DefaultConfig().Window
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				detector.Tick()
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func (r *Runner) newWorkers() ([]*worker, error) {
	workers := make([]*worker, r.cfg.Workload.Threads)
	for i := range workers {
		w, err := r.newWorker(i)
		if err != nil {
			return nil, err
		}
		workers[i] = w
	}
	return workers, nil
}

// claim reserves one operation slot, false once operation_count is reached
func (r *Runner) claim() bool {
	limit := r.cfg.Workload.OperationCount
	if limit == 0 {
		return true
	}
	return r.issued.Add(1) <= limit
}

func (r *Runner) runWorker(ctx context.Context, w *worker, limiter *rate.Limiter, observe func(target.Operation, error, time.Duration)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !r.claim() {
			return nil
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		op := w.next()
		start := time.Now()
		err := r.exec.Execute(ctx, op)
		elapsed := time.Since(start)
		if err != nil && ctx.Err() != nil {
			// cut short by the deadline or cancellation, not a target failure
			return nil
		}
		observe(op, err, elapsed)
	}
}

// RunStability drives the operation mix until the stability duration has
// elapsed, sampling throughput and memory along the way. operation_count is
// ignored.
func (r *Runner) RunStability(ctx context.Context) (*StabilityReport, error) {
	ctx = r.context(ctx, PhaseStability)
	ctx, span := r.tracer.StartPhase(ctx, PhaseStability, r.runID, r.def.Name)
	scfg := r.cfg.Stability

	probe := r.probe
	if probe == nil {
		p, err := stability.NewProbe(scfg.Probe)
		if err != nil {
			tracing.EndPhase(span, metrics.Summary{}, err)
			return nil, err
		}
		probe = p
	}

	analyzer := stability.New(stability.Config{
		Duration:                    scfg.Duration,
		ThroughputSampleInterval:    scfg.ThroughputSampleInterval,
		MemoryCheckInterval:         scfg.MemoryCheckInterval,
		MemoryLeakThresholdPercent:  scfg.MemoryLeakThresholdPercent,
		DegradationThresholdPercent: scfg.DegradationThresholdPercent,
	}, probe, stability.WithClock(r.now), stability.WithName(r.def.Name))

	tracker := metrics.NewTrackerWithClock(r.now)
	r.live.Store(&liveState{phase: PhaseStability, tracker: tracker, overall: analyzer.Metrics(), analyzer: analyzer})

	workers, err := r.newWorkers()
	if err != nil {
		tracing.EndPhase(span, metrics.Summary{}, err)
		return nil, err
	}

	acfg := analyzer.Config()
	r.logger.RunEvent(ctx, "stability_started", map[string]interface{}{
		"duration":          acfg.Duration.String(),
		"throughput_sample": acfg.ThroughputSampleInterval.String(),
		"memory_check":      acfg.MemoryCheckInterval.String(),
	})

	startedAt := r.now()
	analyzer.Start()
	tracker.StartAt(startedAt)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.pollAnalyzer(runCtx, cancel, analyzer)

	limiter := r.limiter()
	g, gctx := errgroup.WithContext(runCtx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			wctx := logging.WithWorker(gctx, w.id)
			for {
				if wctx.Err() != nil || analyzer.IsComplete() {
					return nil
				}
				if limiter != nil {
					if err := limiter.Wait(wctx); err != nil {
						return nil
					}
				}
				op := w.next()
				start := time.Now()
				err := r.exec.Execute(wctx, op)
				elapsed := time.Since(start)
				if err != nil && wctx.Err() != nil {
					return nil
				}
				us := uint64(elapsed.Microseconds())
				analyzer.RecordOperation(err == nil, us)
				if err != nil {
					tracker.RecordFailure(op.Kind)
					r.logger.OperationFailure(wctx, op.Kind.String(), op.Key, elapsed, err)
				} else {
					tracker.RecordSuccess(op.Kind, us)
				}
			}
		})
	}
	err = g.Wait()
	cancel()

	tracker.Stop()
	result := analyzer.Stop()
	r.live.Store(&liveState{phase: PhaseDone, tracker: tracker, overall: analyzer.Metrics(), analyzer: analyzer})

	report := &StabilityReport{
		RunID:        r.runID,
		Workload:     r.def.Name,
		StartedAt:    startedAt,
		Result:       result,
		PerOperation: tracker.Summaries(r.def.Name),
	}
	r.logger.RunEvent(ctx, "stability_finished", map[string]interface{}{
		"passed":            result.Passed(),
		"memory_leak":       result.MemoryLeakDetected(),
		"degradation":       result.ThroughputDegradationDetected(),
		"skipped_snapshots": result.SkippedSnapshots,
	})

	if err != nil && !isContextErr(err) {
		tracing.EndPhase(span, result.Summary, err)
		return report, err
	}
	span.SetAttributes(
		attribute.Bool("kvbench.stability.passed", result.Passed()),
		attribute.Bool("kvbench.stability.memory_leak", result.MemoryLeakDetected()),
		attribute.Bool("kvbench.stability.degradation", result.ThroughputDegradationDetected()),
	)
	tracing.EndPhase(span, result.Summary, nil)
	return report, nil
}

// pollAnalyzer takes due samples while workers are blocked and cancels the
// run once the analyzer is complete
func (r *Runner) pollAnalyzer(ctx context.Context, cancel context.CancelFunc, analyzer *stability.Analyzer) {
	cfg := analyzer.Config()
	interval := cfg.ThroughputSampleInterval
	if cfg.MemoryCheckInterval < interval {
		interval = cfg.MemoryCheckInterval
	}
	interval /= 2
	if interval <= 0 {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			analyzer.Poll()
			if analyzer.IsComplete() {
				cancel()
				return
			}
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
