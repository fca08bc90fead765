package tracing

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"kvbench/internal/target"
)

// InstrumentExecutor wraps exec so every operation opens a span. Operation
// spans start new traces linked to the phase span in ctx, which lets the
// sampler keep a fraction of them without dropping the phase. Batch support
// is preserved. A disabled service returns exec unchanged.
func (s *Service) InstrumentExecutor(exec target.Executor) target.Executor {
	if !s.enabled {
		return exec
	}
	traced := &tracedExecutor{next: exec, tracer: s.tracer}
	if batcher, ok := exec.(target.BatchInserter); ok {
		return &tracedBatchExecutor{tracedExecutor: traced, batcher: batcher}
	}
	return traced
}

type tracedExecutor struct {
	next   target.Executor
	tracer oteltrace.Tracer
}

func (e *tracedExecutor) start(ctx context.Context, name string, opts ...oteltrace.SpanStartOption) (context.Context, oteltrace.Span) {
	opts = append(opts,
		oteltrace.WithNewRoot(),
		oteltrace.WithLinks(oteltrace.LinkFromContext(ctx)),
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
	)
	return e.tracer.Start(ctx, OperationSpanPrefix+name, opts...)
}

func (e *tracedExecutor) Execute(ctx context.Context, op target.Operation) error {
	kind := op.Kind.String()
	ctx, span := e.start(ctx, kind, oteltrace.WithAttributes(
		AttrOperation.String(kind),
		AttrKey.String(op.Key),
	))
	err := e.next.Execute(ctx, op)
	finish(span, err)
	return err
}

func (e *tracedExecutor) Close() error { return e.next.Close() }

type tracedBatchExecutor struct {
	*tracedExecutor
	batcher target.BatchInserter
}

func (e *tracedBatchExecutor) InsertBatch(ctx context.Context, ops []target.Operation) error {
	ctx, span := e.start(ctx, "insert_batch", oteltrace.WithAttributes(
		AttrOperation.String("insert_batch"),
		AttrBatchSize.Int(len(ops)),
	))
	err := e.batcher.InsertBatch(ctx, ops)
	finish(span, err)
	return err
}

func finish(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
