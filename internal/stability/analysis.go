package stability

import (
	"math"
	"time"
)

// MinDegradationSamples is the fewest throughput samples the degradation
// check will judge
const MinDegradationSamples = 10

// ThroughputStats summarizes the sampled throughput of a run
type ThroughputStats struct {
	Samples  int     `json:"samples"`
	Min      float64 `json:"min_ops_sec"`
	Max      float64 `json:"max_ops_sec"`
	Avg      float64 `json:"avg_ops_sec"`
	Variance float64 `json:"variance"`
}

// LeakAnalysis is the outcome of comparing the first and last memory snapshot
type LeakAnalysis struct {
	Detected      bool    `json:"detected"`
	GrowthPercent float64 `json:"growth_percent"`
	BytesPerSec   float64 `json:"bytes_per_sec"`
}

// DegradationAnalysis is the outcome of comparing early and late throughput
type DegradationAnalysis struct {
	Detected    bool    `json:"detected"`
	DropPercent float64 `json:"drop_percent"`
	EarlyAvg    float64 `json:"early_avg_ops_sec"`
	LateAvg     float64 `json:"late_avg_ops_sec"`
}

// SummarizeThroughput returns min, max, mean and population variance
func SummarizeThroughput(samples []float64) ThroughputStats {
	stats := ThroughputStats{Samples: len(samples)}
	if len(samples) == 0 {
		return stats
	}

	stats.Min = math.Inf(1)
	stats.Max = math.Inf(-1)
	var sum float64
	for _, s := range samples {
		sum += s
		stats.Min = math.Min(stats.Min, s)
		stats.Max = math.Max(stats.Max, s)
	}
	stats.Avg = sum / float64(len(samples))

	var sq float64
	for _, s := range samples {
		sq += (s - stats.Avg) * (s - stats.Avg)
	}
	stats.Variance = sq / float64(len(samples))
	return stats
}

// DetectLeak compares resident size between the first and last snapshot.
// Fewer than two snapshots, or a zero first reading, yields no verdict.
func DetectLeak(snapshots []MemorySnapshot, thresholdPercent float64) LeakAnalysis {
	if len(snapshots) < 2 {
		return LeakAnalysis{}
	}

	first := snapshots[0]
	last := snapshots[len(snapshots)-1]
	growth := float64(last.CurrentBytes) - float64(first.CurrentBytes)

	var analysis LeakAnalysis
	if first.CurrentBytes > 0 {
		analysis.GrowthPercent = growth / float64(first.CurrentBytes) * 100
	}
	if elapsed := last.Timestamp.Sub(first.Timestamp).Seconds(); elapsed > 0 {
		analysis.BytesPerSec = growth / elapsed
	}
	analysis.Detected = analysis.GrowthPercent > thresholdPercent
	return analysis
}

// DetectDegradation averages the first and last tenth of the samples (at
// least one sample each) and flags a drop above thresholdPercent.
func DetectDegradation(samples []float64, thresholdPercent float64) DegradationAnalysis {
	if len(samples) < MinDegradationSamples {
		return DegradationAnalysis{}
	}

	window := len(samples) / 10
	if window < 1 {
		window = 1
	}

	analysis := DegradationAnalysis{
		EarlyAvg: mean(samples[:window]),
		LateAvg:  mean(samples[len(samples)-window:]),
	}
	if analysis.EarlyAvg > 0 {
		analysis.DropPercent = (analysis.EarlyAvg - analysis.LateAvg) / analysis.EarlyAvg * 100
	}
	analysis.Detected = analysis.DropPercent > thresholdPercent
	return analysis
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// rate returns count per second over elapsed, 0 for an empty interval
func rate(count uint64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(count) / secs
}
