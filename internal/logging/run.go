package logging

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const RunIDHeader = "X-Run-ID"

// GenerateRunID returns a fresh identifier for one benchmark run
func GenerateRunID() string {
	return uuid.NewString()
}

// WithRun stores the run identity in ctx so every log line of the run
// carries it.
func WithRun(ctx context.Context, runID, workload string) context.Context {
	if runID != "" {
		ctx = context.WithValue(ctx, RunIDKey, runID)
	}
	if workload != "" {
		ctx = context.WithValue(ctx, WorkloadKey, workload)
	}
	return ctx
}

// WithPhase stores the current phase ("load", "warmup", "run", "stability")
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, PhaseKey, phase)
}

// WithWorker stores the worker index
func WithWorker(ctx context.Context, worker int) context.Context {
	return context.WithValue(ctx, WorkerKey, worker)
}

// ExtractRunID extracts the run ID from context
func ExtractRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}

// ExtractPhase extracts the phase from context
func ExtractPhase(ctx context.Context) string {
	if phase, ok := ctx.Value(PhaseKey).(string); ok {
		return phase
	}
	return ""
}

// SanitizeRunID strips characters usable for log injection and caps the length
func SanitizeRunID(id string) string {
	id = strings.ReplaceAll(id, "\n", "")
	id = strings.ReplaceAll(id, "\r", "")
	id = strings.ReplaceAll(id, "\t", "")
	if len(id) > 64 {
		id = id[:64]
	}
	return id
}

// LoggingMiddleware logs status-server requests and echoes the run ID
func LoggingMiddleware(logger *Logger, runID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			if runID != "" {
				w.Header().Set(RunIDHeader, runID)
			}

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			ctx := WithRun(r.Context(), runID, "")
			logger.WithContext(ctx).Debug("Status request",
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_size", wrapped.size,
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(data)
	rw.size += int64(size)
	return size, err
}
