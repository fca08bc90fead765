package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"kvbench/internal/runner"
)

// RenderStability writes a stability report. CSV output lists the memory
// snapshots.
func RenderStability(w io.Writer, format Format, r *runner.StabilityReport) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, r)
	case FormatCSV:
		return renderStabilityCSV(w, r)
	case FormatText, FormatMarkdown:
		renderStabilityTable(w, format, r)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func verdict(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

func renderStabilityTable(w io.Writer, format Format, r *runner.StabilityReport) {
	res := r.Result
	heading(w, format, 2, fmt.Sprintf("%s stability: %s", r.Workload, verdict(res.Passed())))
	fmt.Fprintf(w, "run %s, %s, %d operations, %.2f%% errors\n\n",
		r.RunID, res.Duration.Round(time.Millisecond), res.Summary.TotalOps, res.Summary.ErrorRate)

	fmt.Fprintf(w, "throughput: avg %.1f, min %.1f, max %.1f ops/sec over %d samples\n",
		res.Throughput.Avg, res.Throughput.Min, res.Throughput.Max, res.Throughput.Samples)
	if res.Degradation.Detected {
		fmt.Fprintf(w, "throughput degradation: %.1f%% drop (%.1f -> %.1f ops/sec)\n",
			res.Degradation.DropPercent, res.Degradation.EarlyAvg, res.Degradation.LateAvg)
	} else {
		fmt.Fprintln(w, "throughput degradation: none")
	}
	if res.Leak.Detected {
		fmt.Fprintf(w, "memory leak: %.1f%% growth, %s/sec\n",
			res.Leak.GrowthPercent, humanize.IBytes(uint64(res.Leak.BytesPerSec)))
	} else {
		fmt.Fprintf(w, "memory leak: none (%.1f%% growth)\n", res.Leak.GrowthPercent)
	}
	if res.SkippedSnapshots > 0 {
		fmt.Fprintf(w, "memory snapshots skipped: %d\n", res.SkippedSnapshots)
	}
	fmt.Fprintln(w)

	if len(res.Snapshots) == 0 {
		return
	}
	heading(w, format, 3, "Memory snapshots")
	if format == FormatText {
		fmt.Fprintln(w)
	}
	start := res.Snapshots[0].Timestamp
	table := newTable(w, format, []string{"elapsed", "current", "peak", "ops/sec"})
	for _, s := range res.Snapshots {
		table.Append([]string{
			s.Timestamp.Sub(start).Round(time.Millisecond).String(),
			humanize.IBytes(s.CurrentBytes),
			humanize.IBytes(s.PeakBytes),
			f1(s.Throughput),
		})
	}
	table.Render()
	fmt.Fprintln(w)
}

func renderStabilityCSV(w io.Writer, r *runner.StabilityReport) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"run_id", "workload", "elapsed_ms", "current_bytes", "peak_bytes", "allocations", "deallocations", "throughput_ops_sec"})
	var start time.Time
	if len(r.Result.Snapshots) > 0 {
		start = r.Result.Snapshots[0].Timestamp
	}
	for _, s := range r.Result.Snapshots {
		cw.Write([]string{
			r.RunID, r.Workload,
			strconv.FormatInt(s.Timestamp.Sub(start).Milliseconds(), 10),
			u(s.CurrentBytes), u(s.PeakBytes), u(s.Allocations), u(s.Deallocations),
			strconv.FormatFloat(s.Throughput, 'f', 3, 64),
		})
	}
	cw.Flush()
	return cw.Error()
}
