package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"kvbench/internal/config"
	"kvbench/internal/metrics"
	"kvbench/internal/stability"
	"kvbench/internal/target"
	"kvbench/internal/testutil"
	"kvbench/internal/tracing"
	"kvbench/internal/workload"
)

func newRunner(t *testing.T, cfg *config.Config, exec target.Executor, opts ...Option) *Runner {
	t.Helper()
	r, err := New(cfg, exec, testutil.TestLogger(), opts...)
	require.NoError(t, err)
	return r
}

func sumOps(summaries []metrics.Summary) uint64 {
	var total uint64
	for _, s := range summaries {
		total += s.TotalOps
	}
	return total
}

func findOperation(summaries []metrics.Summary, kind workload.OperationKind) (metrics.Summary, bool) {
	for _, s := range summaries {
		if s.Operation == kind.String() {
			return s, true
		}
	}
	return metrics.Summary{}, false
}

func TestLoadInsertsEveryRecord(t *testing.T) {
	cfg := testutil.TestConfig()
	exec := testutil.TestExecutor(t)
	r := newRunner(t, cfg, exec)

	report, err := r.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, PhaseLoad, report.Phase)
	assert.Equal(t, cfg.Workload.RecordCount, report.Overall.SuccessfulOps)
	assert.Zero(t, report.Overall.FailedOps)
	require.Len(t, report.PerOperation, 1)
	assert.Equal(t, workload.OpInsert.String(), report.PerOperation[0].Operation)

	ctx := context.Background()
	last := workload.KeyName(cfg.Workload.RecordCount - 1)
	assert.NoError(t, exec.Execute(ctx, target.Operation{Kind: workload.OpRead, Key: last}))
	past := workload.KeyName(cfg.Workload.RecordCount)
	assert.ErrorIs(t, exec.Execute(ctx, target.Operation{Kind: workload.OpRead, Key: past}), target.ErrNotFound)
}

func TestLoadWithoutBatching(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Workload.RecordCount = 50
	cfg.Workload.Threads = 3

	// hide the BatchInserter implementation
	exec := struct{ target.Executor }{testutil.TestExecutor(t)}
	r := newRunner(t, cfg, exec)

	report, err := r.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(50), report.Overall.SuccessfulOps)
}

func TestRunStopsAtOperationCount(t *testing.T) {
	cfg := testutil.TestConfig()
	exec := testutil.TestExecutor(t)
	r := newRunner(t, cfg, exec)

	_, err := r.Load(context.Background())
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, PhaseRun, report.Phase)
	assert.Equal(t, "workload_a", report.Workload)
	assert.Equal(t, cfg.Workload.OperationCount, report.Overall.TotalOps)
	assert.Equal(t, report.Overall.TotalOps, sumOps(report.PerOperation))
	assert.Zero(t, report.Overall.ErrorRate)
	assert.Nil(t, report.Warmup)

	for _, s := range report.PerOperation {
		assert.Contains(t, []string{"read", "update"}, s.Operation)
	}
	read, ok := findOperation(report.PerOperation, workload.OpRead)
	require.True(t, ok)
	assert.InDelta(t, 0.5, float64(read.TotalOps)/float64(report.Overall.TotalOps), 0.05)

	var histogramTotal uint64
	for _, b := range report.Histogram {
		histogramTotal += b.Count
	}
	assert.Equal(t, report.Overall.SuccessfulOps, histogramTotal)
}

func TestRunInsertsGrowKeySpace(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Workload.Name = "d"
	exec := testutil.TestExecutor(t)
	r := newRunner(t, cfg, exec)

	_, err := r.Load(context.Background())
	require.NoError(t, err)
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	insert, ok := findOperation(report.PerOperation, workload.OpInsert)
	require.True(t, ok)
	assert.Equal(t, cfg.Workload.RecordCount+insert.TotalOps, r.keyCount())
	assert.Equal(t, string(workload.DistributionLatest), report.Distribution)
	assert.Less(t, report.Overall.ErrorRate, 5.0)
}

func TestRunScanWorkload(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Workload.Name = "e"
	cfg.Workload.OperationCount = 500
	exec := testutil.TestExecutor(t)
	r := newRunner(t, cfg, exec)

	_, err := r.Load(context.Background())
	require.NoError(t, err)
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	scan, ok := findOperation(report.PerOperation, workload.OpScan)
	require.True(t, ok)
	assert.Greater(t, scan.SuccessfulOps, uint64(0))
}

func TestRunExcludesWarmup(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Workload.Threads = 1
	cfg.Workload.OperationCount = 1000
	cfg.Warmup.Enabled = true
	cfg.Warmup.Operations = 100
	exec := testutil.TestExecutor(t)
	r := newRunner(t, cfg, exec)

	_, err := r.Load(context.Background())
	require.NoError(t, err)
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, report.Warmup)
	assert.True(t, report.Warmup.Completed)
	assert.Equal(t, uint64(100), report.Warmup.Operations)
	assert.Equal(t, uint64(900), report.Overall.TotalOps)
	assert.Equal(t, uint64(900), sumOps(report.PerOperation))
}

func TestRunKeepsOneLatencyCopy(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Workload.Threads = 4
	cfg.Workload.OperationCount = 1000
	cfg.Warmup.Enabled = true
	cfg.Warmup.Operations = 100
	exec := testutil.TestExecutor(t)
	r := newRunner(t, cfg, exec)

	_, err := r.Load(context.Background())
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	live := r.live.Load()
	require.NotNil(t, live.detector)
	assert.Equal(t, uint64(100), live.detector.WarmupMetrics().TotalOps())
	assert.Equal(t, uint64(900), live.detector.MeasuredOps())
	assert.Equal(t, uint64(900), live.overall.TotalOps())
	assert.Equal(t, int(live.overall.SuccessfulOps()), live.overall.SampleCount())
}

func TestRunBoundedByDuration(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Workload.OperationCount = 0
	cfg.Workload.Duration = 150 * time.Millisecond
	exec := testutil.TestExecutor(t)
	r := newRunner(t, cfg, exec)

	_, err := r.Load(context.Background())
	require.NoError(t, err)

	start := time.Now()
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Greater(t, report.Overall.TotalOps, uint64(0))
	assert.Zero(t, report.Overall.FailedOps, "operations cut off by the deadline are not failures")
}

func TestRunThrottled(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Workload.OperationCount = 0
	cfg.Workload.Duration = 300 * time.Millisecond
	cfg.Workload.Threads = 2
	cfg.Workload.TargetOpsPerSec = 100
	exec := testutil.TestExecutor(t)
	r := newRunner(t, cfg, exec)

	_, err := r.Load(context.Background())
	require.NoError(t, err)
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, report.Overall.TotalOps, uint64(40))
	assert.Greater(t, report.Overall.TotalOps, uint64(0))
}

func TestRunCountsMissingRecordsAsFailures(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Workload.Name = "c"
	cfg.Workload.OperationCount = 300
	exec := testutil.TestExecutor(t)
	r := newRunner(t, cfg, exec)

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(300), report.Overall.FailedOps)
	assert.Equal(t, 100.0, report.Overall.ErrorRate)
	assert.Zero(t, report.Overall.Throughput)
}

func TestRunCancelled(t *testing.T) {
	cfg := testutil.TestConfig()
	exec := testutil.TestExecutor(t)
	r := newRunner(t, cfg, exec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Overall.TotalOps)
}

func TestRunAgainstRedis(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Workload.Name = "f"
	cfg.Workload.OperationCount = 500
	cfg.Target.Driver = target.DriverRedis
	exec, _ := testutil.TestRedisExecutor(t)
	r := newRunner(t, cfg, exec)

	load, err := r.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg.Workload.RecordCount, load.Overall.SuccessfulOps)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(500), report.Overall.TotalOps)
	assert.Zero(t, report.Overall.FailedOps)

	_, ok := findOperation(report.PerOperation, workload.OpReadModifyWrite)
	assert.True(t, ok)
}

func TestRunStability(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Stability.Duration = 300 * time.Millisecond
	cfg.Stability.ThroughputSampleInterval = 50 * time.Millisecond
	cfg.Stability.MemoryCheckInterval = 100 * time.Millisecond
	exec := testutil.TestExecutor(t)

	probe := stability.ProbeFunc(func() (stability.MemoryReading, error) {
		return stability.MemoryReading{CurrentBytes: 64 << 20, PeakBytes: 64 << 20}, nil
	})
	r := newRunner(t, cfg, exec, WithMemoryProbe(probe))

	_, err := r.Load(context.Background())
	require.NoError(t, err)

	start := time.Now()
	report, err := r.RunStability(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, report.Result.Passed())
	assert.NotEmpty(t, report.Result.ThroughputTrace)
	assert.GreaterOrEqual(t, len(report.Result.Snapshots), 2)
	assert.Equal(t, "workload_a", report.Result.Summary.WorkloadName)
	assert.Equal(t, report.Result.Summary.TotalOps, sumOps(report.PerOperation))
}

func TestProgress(t *testing.T) {
	cfg := testutil.TestConfig()
	exec := testutil.TestExecutor(t)
	r := newRunner(t, cfg, exec, WithRunID("bench-42"))

	p := r.Progress()
	assert.Equal(t, PhaseIdle, p.Phase)
	assert.Equal(t, "bench-42", p.RunID)

	_, err := r.Load(context.Background())
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	p = r.Progress()
	assert.Equal(t, PhaseDone, p.Phase)
	assert.Equal(t, cfg.Workload.OperationCount, p.Overall.Successful)
	assert.NotEmpty(t, p.Operations)
}

func TestRunTraced(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Workload.OperationCount = 100

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(recorder),
		sdktrace.WithSampler(tracing.NewPhaseSampler(1)),
	)
	r := newRunner(t, cfg, testutil.TestExecutor(t), WithTracing(tracing.NewFromProvider(tp)))

	_, err := r.Load(context.Background())
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	phases := map[string]int{}
	ops := 0
	for _, span := range recorder.Ended() {
		switch {
		case strings.HasPrefix(span.Name(), tracing.PhaseSpanPrefix):
			phases[span.Name()]++
		case strings.HasPrefix(span.Name(), tracing.OperationSpanPrefix):
			ops++
		}
	}
	assert.Equal(t, map[string]int{
		tracing.PhaseSpanPrefix + PhaseLoad: 1,
		tracing.PhaseSpanPrefix + PhaseRun:  1,
	}, phases)
	assert.GreaterOrEqual(t, ops, 100, "every run operation plus the load batches")
}

func TestNewRejectsBadWorkload(t *testing.T) {
	exec := testutil.TestExecutor(t)

	cfg := testutil.TestConfig()
	cfg.Workload.Name = "z"
	_, err := New(cfg, exec, nil)
	assert.Error(t, err)

	cfg = testutil.TestConfig()
	cfg.Workload.Name = config.CustomWorkload
	cfg.Workload.Proportions = workload.OperationMix{Read: 0.5}
	_, err = New(cfg, exec, nil)
	assert.ErrorIs(t, err, workload.ErrInvalidProportions)

	_, err = New(testutil.TestConfig(), nil, nil)
	assert.Error(t, err)
}
