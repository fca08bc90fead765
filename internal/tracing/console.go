package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ConsoleExporter writes finished spans as JSON lines, for local runs
// without a collector
type ConsoleExporter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

var _ sdktrace.SpanExporter = (*ConsoleExporter)(nil)

func NewConsoleExporter(w io.Writer) *ConsoleExporter {
	return &ConsoleExporter{enc: json.NewEncoder(w)}
}

type consoleSpan struct {
	TraceID    string                 `json:"trace_id"`
	SpanID     string                 `json:"span_id"`
	ParentID   string                 `json:"parent_id,omitempty"`
	Name       string                 `json:"name"`
	Start      time.Time              `json:"start_time"`
	DurationUs int64                  `json:"duration_us"`
	Status     string                 `json:"status"`
	Error      string                 `json:"error,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	Links      []string               `json:"links,omitempty"`
}

func (e *ConsoleExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, span := range spans {
		out := consoleSpan{
			TraceID:    span.SpanContext().TraceID().String(),
			SpanID:     span.SpanContext().SpanID().String(),
			Name:       span.Name(),
			Start:      span.StartTime(),
			DurationUs: span.EndTime().Sub(span.StartTime()).Microseconds(),
			Status:     span.Status().Code.String(),
			Error:      span.Status().Description,
			Attributes: attributesToMap(span.Attributes()),
		}
		if span.Parent().IsValid() {
			out.ParentID = span.Parent().SpanID().String()
		}
		for _, link := range span.Links() {
			out.Links = append(out.Links, link.SpanContext.SpanID().String())
		}
		if err := e.enc.Encode(out); err != nil {
			return fmt.Errorf("failed to write span: %w", err)
		}
	}
	return nil
}

func (e *ConsoleExporter) Shutdown(ctx context.Context) error { return nil }

func attributesToMap(attrs []attribute.KeyValue) map[string]interface{} {
	if len(attrs) == 0 {
		return nil
	}
	result := make(map[string]interface{}, len(attrs))
	for _, attr := range attrs {
		result[string(attr.Key)] = attr.Value.AsInterface()
	}
	return result
}
