package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"kvbench/internal/metrics"
	"kvbench/internal/runner"
)

var summaryHeader = []string{
	"operation", "ops", "success", "failed", "ops/sec",
	"avg us", "min us", "max us", "p50 us", "p95 us", "p99 us", "p99.9 us", "error %",
}

func summaryRow(s metrics.Summary) []string {
	return []string{
		s.Operation, u(s.TotalOps), u(s.SuccessfulOps), u(s.FailedOps), f1(s.Throughput),
		f1(s.AvgLatencyUs), u(s.MinLatencyUs), u(s.MaxLatencyUs),
		u(s.P50LatencyUs), u(s.P95LatencyUs), u(s.P99LatencyUs), u(s.P999LatencyUs), f2(s.ErrorRate),
	}
}

// Render writes a run or load report
func Render(w io.Writer, format Format, r *runner.RunReport) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, r)
	case FormatCSV:
		return renderRunCSV(w, r)
	case FormatText, FormatMarkdown:
		renderRunTable(w, format, r)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func renderRunTable(w io.Writer, format Format, r *runner.RunReport) {
	heading(w, format, 2, fmt.Sprintf("%s %s", r.Workload, r.Phase))
	fmt.Fprintf(w, "run %s, driver %s, %d threads, %s distribution, %s\n\n",
		r.RunID, r.Driver, r.Threads, r.Distribution, time.Duration(r.Overall.DurationMs)*time.Millisecond)

	table := newTable(w, format, summaryHeader)
	for _, s := range r.PerOperation {
		table.Append(summaryRow(s))
	}
	table.Append(summaryRow(r.Overall))
	table.Render()
	fmt.Fprintln(w)

	if r.Warmup != nil {
		renderWarmup(w, r.Warmup)
	}

	if len(r.Histogram) > 0 {
		heading(w, format, 3, "Latency histogram")
		if format == FormatText {
			fmt.Fprintln(w)
		}
		hist := newTable(w, format, []string{"range us", "count", "%", "cumulative %"})
		for _, b := range r.Histogram {
			hist.Append([]string{bucketLabel(b), u(b.Count), f2(b.Percent), f2(b.CumulativePercent)})
		}
		hist.Render()
		fmt.Fprintln(w)
	}
}

func renderWarmup(w io.Writer, wr *runner.WarmupReport) {
	if !wr.Completed {
		fmt.Fprintf(w, "warmup: did not complete, %d operations discarded\n\n", wr.Operations)
		return
	}
	fmt.Fprintf(w, "warmup: %d operations discarded over %s\n", wr.Operations, time.Duration(wr.DurationMs)*time.Millisecond)
	if wr.SteadyState {
		fmt.Fprintf(w, "steady state: reached at %.1f ops/sec\n\n", wr.SteadyStateThroughput)
	} else {
		fmt.Fprintf(w, "steady state: not reached after %d windows\n\n", len(wr.WindowThroughputs))
	}
}

func bucketLabel(b metrics.HistogramBucket) string {
	if b.Overflow() {
		return fmt.Sprintf(">= %d", b.LowerUs)
	}
	return fmt.Sprintf("%d-%d", b.LowerUs, b.UpperUs)
}

var csvHeader = []string{
	"run_id", "workload", "phase", "operation", "total_ops", "successful_ops", "failed_ops",
	"duration_ms", "throughput_ops_sec", "avg_latency_us", "min_latency_us", "max_latency_us",
	"p50_latency_us", "p95_latency_us", "p99_latency_us", "p999_latency_us", "error_rate_percent",
}

func csvRow(runID, phase string, s metrics.Summary) []string {
	return []string{
		runID, s.WorkloadName, phase, s.Operation,
		u(s.TotalOps), u(s.SuccessfulOps), u(s.FailedOps),
		strconv.FormatInt(s.DurationMs, 10),
		strconv.FormatFloat(s.Throughput, 'f', 3, 64),
		strconv.FormatFloat(s.AvgLatencyUs, 'f', 3, 64),
		u(s.MinLatencyUs), u(s.MaxLatencyUs),
		u(s.P50LatencyUs), u(s.P95LatencyUs), u(s.P99LatencyUs), u(s.P999LatencyUs),
		strconv.FormatFloat(s.ErrorRate, 'f', 4, 64),
	}
}

func renderRunCSV(w io.Writer, r *runner.RunReport) error {
	cw := csv.NewWriter(w)
	cw.Write(csvHeader)
	for _, s := range r.PerOperation {
		cw.Write(csvRow(r.RunID, r.Phase, s))
	}
	cw.Write(csvRow(r.RunID, r.Phase, r.Overall))
	cw.Flush()
	return cw.Error()
}
