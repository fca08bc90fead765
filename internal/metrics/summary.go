package metrics

// Summary is the immutable, serializable view of one Metrics instance taken
// after a run has quiesced. Reports and the comparison tool consume it.
type Summary struct {
	WorkloadName  string  `json:"workload_name"`
	Operation     string  `json:"operation"`
	TotalOps      uint64  `json:"total_ops"`
	SuccessfulOps uint64  `json:"successful_ops"`
	FailedOps     uint64  `json:"failed_ops"`
	DurationMs    int64   `json:"duration_ms"`
	Throughput    float64 `json:"throughput_ops_sec"`
	AvgLatencyUs  float64 `json:"avg_latency_us"`
	MinLatencyUs  uint64  `json:"min_latency_us"`
	MaxLatencyUs  uint64  `json:"max_latency_us"`
	P50LatencyUs  uint64  `json:"p50_latency_us"`
	P95LatencyUs  uint64  `json:"p95_latency_us"`
	P99LatencyUs  uint64  `json:"p99_latency_us"`
	P999LatencyUs uint64  `json:"p999_latency_us"`
	ErrorRate     float64 `json:"error_rate_percent"`
}

// OperationOverall labels a summary that spans every operation kind
const OperationOverall = "overall"

// Summarize snapshots m. Call only after every writer has finished.
func (m *Metrics) Summarize(workloadName, operation string) Summary {
	ps := m.Percentiles(0.50, 0.95, 0.99, 0.999)
	return Summary{
		WorkloadName:  workloadName,
		Operation:     operation,
		TotalOps:      m.TotalOps(),
		SuccessfulOps: m.SuccessfulOps(),
		FailedOps:     m.FailedOps(),
		DurationMs:    m.DurationMs(),
		Throughput:    m.Throughput(),
		AvgLatencyUs:  m.AvgLatency(),
		MinLatencyUs:  m.MinLatency(),
		MaxLatencyUs:  m.MaxLatency(),
		P50LatencyUs:  ps[0],
		P95LatencyUs:  ps[1],
		P99LatencyUs:  ps[2],
		P999LatencyUs: ps[3],
		ErrorRate:     m.ErrorRate(),
	}
}
