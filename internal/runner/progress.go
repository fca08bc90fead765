package runner

import (
	"kvbench/internal/metrics"
	"kvbench/internal/warmup"
)

// Progress is a point-in-time view of the phase in flight. It reads only
// lock-free counters, never percentiles, so it is safe to take while workers
// are running.
type Progress struct {
	RunID        string              `json:"run_id"`
	Workload     string              `json:"workload"`
	Phase        string              `json:"phase"`
	ElapsedMs    int64               `json:"elapsed_ms"`
	WarmupActive bool                `json:"warmup_active"`
	SteadyState  bool                `json:"steady_state"`
	Overall      OperationProgress   `json:"overall"`
	Operations   []OperationProgress `json:"operations"`
}

// OperationProgress carries the live counters of one collector
type OperationProgress struct {
	Operation    string  `json:"operation"`
	Successful   uint64  `json:"successful"`
	Failed       uint64  `json:"failed"`
	AvgLatencyUs float64 `json:"avg_latency_us"`
	MaxLatencyUs uint64  `json:"max_latency_us"`
	Throughput   float64 `json:"throughput_ops_sec"`
}

// Progress snapshots the current phase
func (r *Runner) Progress() Progress {
	state := r.live.Load()
	p := Progress{
		RunID:    r.runID,
		Workload: r.def.Name,
		Phase:    state.phase,
	}

	if d := state.detector; d != nil {
		p.SteadyState = d.IsSteadyState()
		if state.phase == PhaseRun && d.Phase() == warmup.PhaseWarmingUp {
			p.Phase = PhaseWarmup
			p.WarmupActive = true
		}
	}
	if state.overall != nil {
		p.Overall = operationProgress(metrics.OperationOverall, state.overall)
		p.ElapsedMs = state.overall.DurationMs()
	}
	if t := state.tracker; t != nil {
		for _, kind := range t.Kinds() {
			if m, ok := t.Lookup(kind); ok {
				p.Operations = append(p.Operations, operationProgress(kind.String(), m))
			}
		}
	}
	return p
}

func operationProgress(name string, m *metrics.Metrics) OperationProgress {
	return OperationProgress{
		Operation:    name,
		Successful:   m.SuccessfulOps(),
		Failed:       m.FailedOps(),
		AvgLatencyUs: m.AvgLatency(),
		MaxLatencyUs: m.MaxLatency(),
		Throughput:   m.Throughput(),
	}
}
