// Package comparison diffs benchmark summaries from two runs and flags
// regressions.
package comparison

import (
	"fmt"

	"kvbench/internal/metrics"
)

const (
	// ImprovementThresholdPercent is the throughput gain, or average latency
	// reduction, that makes a candidate an improvement
	ImprovementThresholdPercent = 5.0
	// ErrorRateTolerance is the error-rate increase, in percentage points,
	// an improvement may carry
	ErrorRateTolerance = 0.1
	// DefaultRegressionThresholdPercent is used when no threshold is given
	DefaultRegressionThresholdPercent = 10.0
)

// Result is the comparison of one baseline/candidate pair. Percent changes
// are (candidate-baseline)/baseline*100, and 0 for a zero baseline.
type Result struct {
	WorkloadName string `json:"workload_name"`
	Operation    string `json:"operation,omitempty"`

	Baseline  metrics.Summary `json:"baseline"`
	Candidate metrics.Summary `json:"candidate"`

	ThroughputChangePercent  float64 `json:"throughput_change_percent"`
	AvgLatencyChangePercent  float64 `json:"avg_latency_change_percent"`
	P50LatencyChangePercent  float64 `json:"p50_latency_change_percent"`
	P95LatencyChangePercent  float64 `json:"p95_latency_change_percent"`
	P99LatencyChangePercent  float64 `json:"p99_latency_change_percent"`
	P999LatencyChangePercent float64 `json:"p999_latency_change_percent"`
	ErrorRateDelta           float64 `json:"error_rate_delta"`

	IsImprovement bool     `json:"is_improvement"`
	IsRegression  bool     `json:"is_regression"`
	Regressions   []string `json:"regressions,omitempty"`
}

// PercentChange returns (candidate-baseline)/baseline*100, or 0 when the
// baseline is zero
func PercentChange(baseline, candidate float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (candidate - baseline) / baseline * 100
}

// Compare computes the change from baseline to candidate. The regression
// verdict is left unset; FindRegressions and CompareAll apply a threshold.
func Compare(baseline, candidate metrics.Summary) Result {
	r := Result{
		WorkloadName: candidate.WorkloadName,
		Operation:    candidate.Operation,
		Baseline:     baseline,
		Candidate:    candidate,

		ThroughputChangePercent:  PercentChange(baseline.Throughput, candidate.Throughput),
		AvgLatencyChangePercent:  PercentChange(baseline.AvgLatencyUs, candidate.AvgLatencyUs),
		P50LatencyChangePercent:  PercentChange(float64(baseline.P50LatencyUs), float64(candidate.P50LatencyUs)),
		P95LatencyChangePercent:  PercentChange(float64(baseline.P95LatencyUs), float64(candidate.P95LatencyUs)),
		P99LatencyChangePercent:  PercentChange(float64(baseline.P99LatencyUs), float64(candidate.P99LatencyUs)),
		P999LatencyChangePercent: PercentChange(float64(baseline.P999LatencyUs), float64(candidate.P999LatencyUs)),
		ErrorRateDelta:           candidate.ErrorRate - baseline.ErrorRate,
	}

	faster := r.ThroughputChangePercent > ImprovementThresholdPercent ||
		r.AvgLatencyChangePercent < -ImprovementThresholdPercent
	r.IsImprovement = faster && r.ErrorRateDelta <= ErrorRateTolerance
	return r
}

// CompareWithThreshold compares and applies the regression verdict: a
// throughput drop, or an average or P99 latency increase, beyond
// thresholdPercent.
func CompareWithThreshold(baseline, candidate metrics.Summary, thresholdPercent float64) Result {
	r := Compare(baseline, candidate)

	if r.ThroughputChangePercent < -thresholdPercent {
		r.Regressions = append(r.Regressions,
			fmt.Sprintf("throughput dropped %.2f%%", -r.ThroughputChangePercent))
	}
	if r.AvgLatencyChangePercent > thresholdPercent {
		r.Regressions = append(r.Regressions,
			fmt.Sprintf("average latency increased %.2f%%", r.AvgLatencyChangePercent))
	}
	if r.P99LatencyChangePercent > thresholdPercent {
		r.Regressions = append(r.Regressions,
			fmt.Sprintf("p99 latency increased %.2f%%", r.P99LatencyChangePercent))
	}
	r.IsRegression = len(r.Regressions) > 0
	return r
}

// CompareAll pairs each candidate with the first baseline of the same
// workload name and compares them. Candidates without a baseline are
// skipped.
func CompareAll(baselines, candidates []metrics.Summary, thresholdPercent float64) []Result {
	var results []Result
	for _, candidate := range candidates {
		baseline, ok := findBaseline(baselines, candidate.WorkloadName)
		if !ok {
			continue
		}
		results = append(results, CompareWithThreshold(baseline, candidate, thresholdPercent))
	}
	return results
}

// FindRegressions returns only the pairs CompareAll flags as regressions
func FindRegressions(baselines, candidates []metrics.Summary, thresholdPercent float64) []Result {
	var regressions []Result
	for _, r := range CompareAll(baselines, candidates, thresholdPercent) {
		if r.IsRegression {
			regressions = append(regressions, r)
		}
	}
	return regressions
}

func findBaseline(baselines []metrics.Summary, name string) (metrics.Summary, bool) {
	for _, b := range baselines {
		if b.WorkloadName == name {
			return b, true
		}
	}
	return metrics.Summary{}, false
}
