package comparison

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvbench/internal/metrics"
)

func summary(name string, throughput, avg float64, p99 uint64, errorRate float64) metrics.Summary {
	return metrics.Summary{
		WorkloadName:  name,
		Operation:     metrics.OperationOverall,
		Throughput:    throughput,
		AvgLatencyUs:  avg,
		P50LatencyUs:  uint64(avg),
		P95LatencyUs:  p99 / 2,
		P99LatencyUs:  p99,
		P999LatencyUs: p99 * 2,
		ErrorRate:     errorRate,
	}
}

func TestCompareThroughputImprovement(t *testing.T) {
	r := Compare(summary("a", 1000, 100, 500, 0), summary("a", 1100, 100, 500, 0))

	assert.InDelta(t, 10.0, r.ThroughputChangePercent, 1e-9)
	assert.Zero(t, r.AvgLatencyChangePercent)
	assert.Zero(t, r.ErrorRateDelta)
	assert.True(t, r.IsImprovement)
	assert.False(t, r.IsRegression)
}

func TestCompareLatencyImprovement(t *testing.T) {
	r := Compare(summary("a", 1000, 100, 500, 1), summary("a", 1000, 90, 450, 1.05))

	assert.InDelta(t, -10.0, r.AvgLatencyChangePercent, 1e-9)
	assert.InDelta(t, -10.0, r.P99LatencyChangePercent, 1e-9)
	assert.True(t, r.IsImprovement)
}

func TestCompareImprovementNeedsErrorRate(t *testing.T) {
	r := Compare(summary("a", 1000, 100, 500, 1.0), summary("a", 2000, 50, 250, 1.2))

	assert.InDelta(t, 0.2, r.ErrorRateDelta, 1e-9)
	assert.False(t, r.IsImprovement)
}

func TestCompareSmallGainIsNotImprovement(t *testing.T) {
	r := Compare(summary("a", 1000, 100, 500, 0), summary("a", 1040, 97, 500, 0))
	assert.False(t, r.IsImprovement)
}

func TestCompareZeroBaseline(t *testing.T) {
	r := Compare(metrics.Summary{WorkloadName: "a"}, summary("a", 1000, 100, 500, 5))

	assert.Zero(t, r.ThroughputChangePercent)
	assert.Zero(t, r.AvgLatencyChangePercent)
	assert.Zero(t, r.P999LatencyChangePercent)
	assert.InDelta(t, 5.0, r.ErrorRateDelta, 1e-9)
}

func TestCompareWithThreshold(t *testing.T) {
	tests := []struct {
		name      string
		candidate metrics.Summary
		reasons   int
	}{
		{"unchanged", summary("a", 1000, 100, 500, 0), 0},
		{"throughput drop", summary("a", 850, 100, 500, 0), 1},
		{"throughput drop within threshold", summary("a", 950, 100, 500, 0), 0},
		{"average latency up", summary("a", 1000, 120, 500, 0), 1},
		{"p99 up", summary("a", 1000, 100, 600, 0), 1},
		{"everything worse", summary("a", 500, 200, 1000, 0), 3},
	}

	baseline := summary("a", 1000, 100, 500, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := CompareWithThreshold(baseline, tt.candidate, 10)
			assert.Len(t, r.Regressions, tt.reasons)
			assert.Equal(t, tt.reasons > 0, r.IsRegression)
		})
	}
}

func TestFindRegressions(t *testing.T) {
	baselines := []metrics.Summary{
		summary("workload_a", 1000, 100, 500, 0),
		summary("workload_b", 2000, 50, 200, 0),
		summary("workload_a", 1, 1, 1, 0),
	}
	candidates := []metrics.Summary{
		summary("workload_a", 800, 100, 500, 0),
		summary("workload_b", 2100, 48, 190, 0),
		summary("workload_z", 1, 100000, 100000, 50),
	}

	regressions := FindRegressions(baselines, candidates, 10)
	require.Len(t, regressions, 1)
	assert.Equal(t, "workload_a", regressions[0].WorkloadName)
	assert.InDelta(t, -20.0, regressions[0].ThroughputChangePercent, 1e-9, "first baseline wins")

	all := CompareAll(baselines, candidates, 10)
	require.Len(t, all, 2, "unmatched candidate skipped")
	assert.False(t, all[1].IsRegression)
}

func TestFindRegressionsEmpty(t *testing.T) {
	assert.Empty(t, FindRegressions(nil, []metrics.Summary{summary("a", 1, 1, 1, 0)}, 10))
	assert.Empty(t, FindRegressions([]metrics.Summary{summary("a", 1, 1, 1, 0)}, nil, 10))
}

func TestPercentChangeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("identical runs show no change", prop.ForAll(
		func(throughput, avg float64) bool {
			s := summary("w", throughput, avg, 100, 0)
			r := CompareWithThreshold(s, s, 10)
			return r.ThroughputChangePercent == 0 && r.AvgLatencyChangePercent == 0 &&
				!r.IsRegression && !r.IsImprovement
		},
		gen.Float64Range(0, 1e6),
		gen.Float64Range(0, 1e6),
	))

	properties.Property("percent change inverts the ratio", prop.ForAll(
		func(base, factor float64) bool {
			got := PercentChange(base, base*factor)
			want := (factor - 1) * 100
			diff := got - want
			return diff < 1e-6 && diff > -1e-6
		},
		gen.Float64Range(1, 1e6),
		gen.Float64Range(0, 10),
	))

	properties.TestingRun(t)
}
