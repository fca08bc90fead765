package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"kvbench/internal/comparison"
)

func resultVerdict(r comparison.Result) string {
	switch {
	case r.IsRegression:
		return "REGRESSION"
	case r.IsImprovement:
		return "improvement"
	default:
		return "unchanged"
	}
}

// RenderComparison writes one row per compared workload followed by the
// regression reasons
func RenderComparison(w io.Writer, format Format, results []comparison.Result) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, results)
	case FormatCSV:
		return renderComparisonCSV(w, results)
	case FormatText, FormatMarkdown:
		renderComparisonTable(w, format, results)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func renderComparisonTable(w io.Writer, format Format, results []comparison.Result) {
	heading(w, format, 2, "Comparison")
	if format == FormatText {
		fmt.Fprintln(w)
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "no matching workloads")
		return
	}

	table := newTable(w, format, []string{
		"workload", "baseline ops/sec", "candidate ops/sec", "throughput",
		"avg latency", "p99 latency", "error rate", "verdict",
	})
	regressions := 0
	for _, r := range results {
		if r.IsRegression {
			regressions++
		}
		table.Append([]string{
			r.WorkloadName,
			f1(r.Baseline.Throughput),
			f1(r.Candidate.Throughput),
			signed(r.ThroughputChangePercent),
			signed(r.AvgLatencyChangePercent),
			signed(r.P99LatencyChangePercent),
			fmt.Sprintf("%+.2f pp", r.ErrorRateDelta),
			resultVerdict(r),
		})
	}
	table.Render()
	fmt.Fprintln(w)

	for _, r := range results {
		for _, reason := range r.Regressions {
			fmt.Fprintf(w, "- %s: %s\n", r.WorkloadName, reason)
		}
	}
	fmt.Fprintf(w, "%d of %d workloads regressed\n", regressions, len(results))
}

func renderComparisonCSV(w io.Writer, results []comparison.Result) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{
		"workload", "operation", "baseline_throughput", "candidate_throughput",
		"throughput_change_percent", "avg_latency_change_percent", "p50_latency_change_percent",
		"p95_latency_change_percent", "p99_latency_change_percent", "p999_latency_change_percent",
		"error_rate_delta", "is_improvement", "is_regression", "regressions",
	})
	pct := func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
	for _, r := range results {
		cw.Write([]string{
			r.WorkloadName, r.Operation,
			pct(r.Baseline.Throughput), pct(r.Candidate.Throughput),
			pct(r.ThroughputChangePercent), pct(r.AvgLatencyChangePercent), pct(r.P50LatencyChangePercent),
			pct(r.P95LatencyChangePercent), pct(r.P99LatencyChangePercent), pct(r.P999LatencyChangePercent),
			pct(r.ErrorRateDelta),
			strconv.FormatBool(r.IsImprovement), strconv.FormatBool(r.IsRegression),
			strings.Join(r.Regressions, "; "),
		})
	}
	cw.Flush()
	return cw.Error()
}
