package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"kvbench/internal/runner"
)

// MetricPrefix starts every exported metric name
const MetricPrefix = "kvbench"

var (
	operationsDesc = prometheus.NewDesc(
		MetricPrefix+"_phase_operations",
		"Operations completed in the current phase, by operation and outcome. Resets when a new phase starts.",
		[]string{"workload", "operation", "outcome"}, nil,
	)
	avgLatencyDesc = prometheus.NewDesc(
		MetricPrefix+"_latency_avg_microseconds",
		"Mean latency of successful operations in the current phase.",
		[]string{"workload", "operation"}, nil,
	)
	maxLatencyDesc = prometheus.NewDesc(
		MetricPrefix+"_latency_max_microseconds",
		"Maximum latency of successful operations in the current phase.",
		[]string{"workload", "operation"}, nil,
	)
	throughputDesc = prometheus.NewDesc(
		MetricPrefix+"_throughput_ops_per_second",
		"Successful operations per second over the measured interval.",
		[]string{"workload", "operation"}, nil,
	)
	warmupActiveDesc = prometheus.NewDesc(
		MetricPrefix+"_warmup_active",
		"1 while warmup operations are being discarded, 0 otherwise.",
		[]string{"workload"}, nil,
	)
	steadyStateDesc = prometheus.NewDesc(
		MetricPrefix+"_steady_state",
		"1 once windowed throughput has been declared steady.",
		[]string{"workload"}, nil,
	)
	phaseDesc = prometheus.NewDesc(
		MetricPrefix+"_phase",
		"Current driver phase; the active phase has value 1.",
		[]string{"workload", "phase"}, nil,
	)
)

var phases = []string{
	runner.PhaseIdle,
	runner.PhaseLoad,
	runner.PhaseWarmup,
	runner.PhaseRun,
	runner.PhaseStability,
	runner.PhaseDone,
}

// Collector exports a live run as Prometheus metrics. Every scrape takes a
// fresh Progress snapshot.
type Collector struct {
	source ProgressSource
}

// NewCollector creates a collector over source
func NewCollector(source ProgressSource) *Collector {
	return &Collector{source: source}
}

func (c *Collector) Describe(desc chan<- *prometheus.Desc) {
	desc <- operationsDesc
	desc <- avgLatencyDesc
	desc <- maxLatencyDesc
	desc <- throughputDesc
	desc <- warmupActiveDesc
	desc <- steadyStateDesc
	desc <- phaseDesc
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	p := c.source.Progress()

	for _, op := range append(p.Operations, p.Overall) {
		if op.Operation == "" {
			continue
		}
		metrics <- prometheus.MustNewConstMetric(operationsDesc, prometheus.GaugeValue, float64(op.Successful), p.Workload, op.Operation, "success")
		metrics <- prometheus.MustNewConstMetric(operationsDesc, prometheus.GaugeValue, float64(op.Failed), p.Workload, op.Operation, "failure")
		metrics <- prometheus.MustNewConstMetric(avgLatencyDesc, prometheus.GaugeValue, op.AvgLatencyUs, p.Workload, op.Operation)
		metrics <- prometheus.MustNewConstMetric(maxLatencyDesc, prometheus.GaugeValue, float64(op.MaxLatencyUs), p.Workload, op.Operation)
		metrics <- prometheus.MustNewConstMetric(throughputDesc, prometheus.GaugeValue, op.Throughput, p.Workload, op.Operation)
	}

	metrics <- prometheus.MustNewConstMetric(warmupActiveDesc, prometheus.GaugeValue, boolValue(p.WarmupActive), p.Workload)
	metrics <- prometheus.MustNewConstMetric(steadyStateDesc, prometheus.GaugeValue, boolValue(p.SteadyState), p.Workload)
	for _, phase := range phases {
		metrics <- prometheus.MustNewConstMetric(phaseDesc, prometheus.GaugeValue, boolValue(phase == p.Phase), p.Workload, phase)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
