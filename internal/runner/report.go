package runner

import (
	"time"

	"kvbench/internal/metrics"
	"kvbench/internal/stability"
	"kvbench/internal/warmup"
)

// RunReport is the result of Load or Run, built after every worker has
// joined
type RunReport struct {
	RunID        string                    `json:"run_id"`
	Workload     string                    `json:"workload"`
	Phase        string                    `json:"phase"`
	Driver       string                    `json:"driver"`
	Distribution string                    `json:"distribution"`
	Threads      int                       `json:"threads"`
	StartedAt    time.Time                 `json:"started_at"`
	Overall      metrics.Summary           `json:"overall"`
	PerOperation []metrics.Summary         `json:"operations"`
	Histogram    []metrics.HistogramBucket `json:"histogram"`
	Warmup       *WarmupReport             `json:"warmup,omitempty"`
}

// WarmupReport describes the discarded warmup phase and the steady-state
// verdict for the measured phase
type WarmupReport struct {
	Operations            uint64    `json:"operations"`
	Completed             bool      `json:"completed"`
	DurationMs            int64     `json:"duration_ms"`
	SteadyState           bool      `json:"steady_state"`
	SteadyStateThroughput float64   `json:"steady_state_throughput_ops_sec,omitempty"`
	WindowThroughputs     []float64 `json:"window_throughputs"`
}

// StabilityReport is the result of RunStability
type StabilityReport struct {
	RunID        string            `json:"run_id"`
	Workload     string            `json:"workload"`
	StartedAt    time.Time         `json:"started_at"`
	Result       stability.Result  `json:"result"`
	PerOperation []metrics.Summary `json:"operations"`
}

func (r *Runner) buildReport(phase string, startedAt time.Time, tracker *metrics.Tracker, overall *metrics.Metrics, detector *warmup.Detector) *RunReport {
	report := &RunReport{
		RunID:        r.runID,
		Workload:     r.def.Name,
		Phase:        phase,
		Driver:       r.cfg.Target.Driver,
		Distribution: string(r.def.Distribution),
		Threads:      r.cfg.Workload.Threads,
		StartedAt:    startedAt,
		Overall:      overall.Summarize(r.def.Name, metrics.OperationOverall),
		PerOperation: tracker.Summaries(r.def.Name),
		Histogram:    overall.Histogram(),
	}
	if detector != nil {
		steadyThroughput, steady := detector.SteadyStateThroughput()
		report.Warmup = &WarmupReport{
			Operations:            detector.WarmupOps(),
			Completed:             detector.IsWarmupComplete(),
			DurationMs:            detector.WarmupMetrics().DurationMs(),
			SteadyState:           steady,
			SteadyStateThroughput: steadyThroughput,
			WindowThroughputs:     detector.WindowThroughputs(),
		}
	}
	return report
}
