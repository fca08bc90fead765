// Package tracing emits OpenTelemetry spans for benchmark phases and,
// sampled, for individual target operations.
package tracing

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"kvbench/internal/config"
	"kvbench/internal/metrics"
)

const (
	instrumentationName = "kvbench"

	// PhaseSpanPrefix names phase spans, which are always sampled
	PhaseSpanPrefix = "kvbench.phase."

	// OperationSpanPrefix names per-operation spans, sampled at the
	// configured ratio
	OperationSpanPrefix = "kvbench.op."
)

// Attribute keys set on benchmark spans
const (
	AttrRunID      = attribute.Key("kvbench.run_id")
	AttrWorkload   = attribute.Key("kvbench.workload")
	AttrPhase      = attribute.Key("kvbench.phase")
	AttrOperation  = attribute.Key("kvbench.operation")
	AttrKey        = attribute.Key("kvbench.key")
	AttrBatchSize  = attribute.Key("kvbench.batch_size")
	AttrTotalOps   = attribute.Key("kvbench.ops.total")
	AttrFailedOps  = attribute.Key("kvbench.ops.failed")
	AttrThroughput = attribute.Key("kvbench.throughput")
	AttrAvgLatency = attribute.Key("kvbench.latency.avg_us")
	AttrP99Latency = attribute.Key("kvbench.latency.p99_us")
)

// Service hands out spans. A disabled service uses a no-op tracer, so
// callers never need to check whether tracing is on.
type Service struct {
	tracer   oteltrace.Tracer
	provider *sdktrace.TracerProvider
	enabled  bool
}

// Disabled returns a service whose spans are never recorded
func Disabled() *Service {
	return &Service{tracer: noop.NewTracerProvider().Tracer(instrumentationName)}
}

// NewFromProvider traces through an existing provider. Shutting the
// provider down stays with the caller.
func NewFromProvider(tp oteltrace.TracerProvider) *Service {
	return &Service{tracer: tp.Tracer(instrumentationName), enabled: true}
}

// New builds the exporter named in cfg. The console exporter writes one JSON
// document per span to console.
func New(cfg config.TracingConfig, console io.Writer) (*Service, error) {
	if !cfg.Enabled {
		return Disabled(), nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch strings.ToLower(cfg.Exporter) {
	case "otlp":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithHeaders(cfg.OTLPHeaders),
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	case "console", "":
		exporter = NewConsoleExporter(console)
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(NewPhaseSampler(cfg.SamplingRatio)),
	)
	return &Service{
		tracer:   tp.Tracer(instrumentationName),
		provider: tp,
		enabled:  true,
	}, nil
}

// Enabled reports whether spans are recorded
func (s *Service) Enabled() bool { return s.enabled }

// StartPhase opens the span covering one benchmark phase
func (s *Service) StartPhase(ctx context.Context, phase, runID, workloadName string) (context.Context, oteltrace.Span) {
	return s.tracer.Start(ctx, PhaseSpanPrefix+phase,
		oteltrace.WithAttributes(
			AttrRunID.String(runID),
			AttrWorkload.String(workloadName),
			AttrPhase.String(phase),
		),
	)
}

// EndPhase annotates a phase span with its overall summary and ends it
func EndPhase(span oteltrace.Span, summary metrics.Summary, err error) {
	span.SetAttributes(
		AttrTotalOps.Int64(int64(summary.TotalOps)),
		AttrFailedOps.Int64(int64(summary.FailedOps)),
		AttrThroughput.Float64(summary.Throughput),
		AttrAvgLatency.Float64(summary.AvgLatencyUs),
		AttrP99Latency.Int64(int64(summary.P99LatencyUs)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Close flushes buffered spans
func (s *Service) Close(ctx context.Context) error {
	if s.provider != nil {
		return s.provider.Shutdown(ctx)
	}
	return nil
}

// phaseSampler keeps every phase span and samples operation spans by trace
// ID ratio
type phaseSampler struct {
	operations sdktrace.Sampler
}

// NewPhaseSampler samples operation spans at ratio; ratio <= 0 drops them
// and ratio >= 1 keeps them all
func NewPhaseSampler(ratio float64) sdktrace.Sampler {
	return phaseSampler{operations: sdktrace.TraceIDRatioBased(ratio)}
}

func (s phaseSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if strings.HasPrefix(p.Name, PhaseSpanPrefix) {
		return sdktrace.AlwaysSample().ShouldSample(p)
	}
	return s.operations.ShouldSample(p)
}

func (s phaseSampler) Description() string {
	return "PhaseSampler{" + s.operations.Description() + "}"
}
