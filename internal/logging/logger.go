package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"kvbench/internal/config"
)

type Logger struct {
	*slog.Logger
	config   *config.LoggingConfig
	failures *atomic.Uint64
}

type ContextKey string

const (
	RunIDKey    ContextKey = "run_id"
	WorkloadKey ContextKey = "workload"
	PhaseKey    ContextKey = "phase"
	WorkerKey   ContextKey = "worker"
)

// NewLogger creates a new structured logger using slog and installs it as
// the process default.
func NewLogger(cfg *config.LoggingConfig) *Logger {
	var writer io.Writer
	switch cfg.Output {
	case "stdout":
		writer = os.Stdout
	case "stderr", "":
		writer = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			writer = file
		} else {
			writer = os.Stderr
			slog.Warn("Failed to open log file, using stderr", "error", err, "file", cfg.Output)
		}
	}

	logger := NewLoggerWithWriter(cfg, writer)
	slog.SetDefault(logger.Logger)
	return logger
}

// NewLoggerWithWriter creates a logger writing to w. It does not touch the
// process default.
func NewLoggerWithWriter(cfg *config.LoggingConfig, w io.Writer) *Logger {
	level := parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text", "console":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger:   slog.New(handler),
		config:   cfg,
		failures: new(atomic.Uint64),
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) derive(logger *slog.Logger) *Logger {
	return &Logger{
		Logger:   logger,
		config:   l.config,
		failures: l.failures,
	}
}

// WithContext creates a new logger carrying the run attributes found in ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger

	if runID := ctx.Value(RunIDKey); runID != nil {
		logger = logger.With("run_id", runID)
	}
	if workload := ctx.Value(WorkloadKey); workload != nil {
		logger = logger.With("workload", workload)
	}
	if phase := ctx.Value(PhaseKey); phase != nil {
		logger = logger.With("phase", phase)
	}
	if worker := ctx.Value(WorkerKey); worker != nil {
		logger = logger.With("worker", worker)
	}

	return l.derive(logger)
}

// WithFields creates a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	var args []interface{}
	for key, value := range fields {
		args = append(args, key, value)
	}
	return l.derive(l.Logger.With(args...))
}

// WithField creates a new logger with a single additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(l.Logger.With(key, value))
}

// WithError creates a new logger with an error field
func (l *Logger) WithError(err error) *Logger {
	return l.derive(l.Logger.With("error", err.Error()))
}

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...interface{}) {
	l.WithContext(ctx).Debug(msg, args...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...interface{}) {
	l.WithContext(ctx).Info(msg, args...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...interface{}) {
	l.WithContext(ctx).Warn(msg, args...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...interface{}) {
	l.WithContext(ctx).Error(msg, args...)
}

// RunEvent logs a run lifecycle event: phase changes, steady state,
// stability verdicts.
func (l *Logger) RunEvent(ctx context.Context, event string, details map[string]interface{}) {
	args := []interface{}{"event", event}
	for key, value := range details {
		args = append(args, key, value)
	}
	l.WithContext(ctx).Info("Run event", args...)
}

// OperationFailure logs a failed benchmark operation at debug level. With
// LogSampling set to N only every Nth failure is logged.
func (l *Logger) OperationFailure(ctx context.Context, operation, key string, duration time.Duration, err error) {
	n := l.failures.Add(1)
	if l.config != nil && l.config.LogSampling > 1 && n%uint64(l.config.LogSampling) != 1 {
		return
	}

	l.WithContext(ctx).Debug("Operation failed",
		"operation", operation,
		"key", key,
		"duration_ms", duration.Milliseconds(),
		"error", err.Error(),
		"failure_count", n,
	)
}

// OperationFailures returns how many failures were reported, sampled or not
func (l *Logger) OperationFailures() uint64 {
	return l.failures.Load()
}

// Performance logs performance metrics. It is a no-op unless
// EnablePerformanceLog is set.
func (l *Logger) Performance(ctx context.Context, metric string, value float64, unit string, tags map[string]string) {
	if l.config != nil && !l.config.EnablePerformanceLog {
		return
	}

	args := []interface{}{
		"metric", metric,
		"value", value,
		"unit", unit,
	}
	for key, value := range tags {
		args = append(args, "tag_"+key, value)
	}

	l.WithContext(ctx).Info("Performance metric", args...)
}
