package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kvbench/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config config.LoggingConfig
	}{
		{"development", DevelopmentLoggingConfig()},
		{"production", ProductionLoggingConfig()},
		{"test", TestLoggingConfig()},
		{"soak", SoakLoggingConfig()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(&tt.config)
			if logger == nil {
				t.Fatal("Expected logger to be created")
			}
			logger.Info("Environment test", "environment", tt.name)
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Failed to decode log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "info", Format: "json"}
	logger := NewLoggerWithWriter(&cfg, &buf)

	runID := GenerateRunID()
	ctx := WithRun(context.Background(), runID, "workload_a")
	ctx = WithPhase(ctx, "run")
	ctx = WithWorker(ctx, 3)

	logger.InfoContext(ctx, "Run started")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log line, got %d", len(entries))
	}
	entry := entries[0]
	if entry["run_id"] != runID {
		t.Errorf("Expected run_id %s, got %v", runID, entry["run_id"])
	}
	if entry["workload"] != "workload_a" || entry["phase"] != "run" {
		t.Errorf("Missing run attributes: %v", entry)
	}
	if entry["worker"] != float64(3) {
		t.Errorf("Expected worker 3, got %v", entry["worker"])
	}
	if _, err := time.Parse(time.RFC3339, entry["time"].(string)); err != nil {
		t.Errorf("Expected RFC3339 timestamp, got %v", entry["time"])
	}

	if ExtractRunID(ctx) != runID {
		t.Error("Expected run ID to round-trip through context")
	}
	if ExtractPhase(ctx) != "run" {
		t.Error("Expected phase to round-trip through context")
	}
	if ExtractRunID(context.Background()) != "" {
		t.Error("Expected empty run ID for bare context")
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "debug", Format: "json"}
	logger := NewLoggerWithWriter(&cfg, &buf)

	logger.WithField("component", "runner").Info("with field")
	logger.WithFields(map[string]interface{}{"threads": 4, "driver": "badger"}).Info("with fields")
	logger.WithError(errors.New("boom")).Error("with error")

	entries := decodeLines(t, &buf)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 log lines, got %d", len(entries))
	}
	if entries[0]["component"] != "runner" {
		t.Errorf("Expected component field, got %v", entries[0])
	}
	if entries[1]["driver"] != "badger" {
		t.Errorf("Expected driver field, got %v", entries[1])
	}
	if entries[2]["error"] != "boom" {
		t.Errorf("Expected error field, got %v", entries[2])
	}
}

func TestRunEvent(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "info", Format: "json"}
	logger := NewLoggerWithWriter(&cfg, &buf)

	logger.RunEvent(context.Background(), "steady_state_reached", map[string]interface{}{
		"throughput": 1000.0,
	})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["event"] != "steady_state_reached" {
		t.Fatalf("Unexpected run event output: %v", entries)
	}
}

func TestOperationFailureSampling(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "debug", Format: "json", LogSampling: 10}
	logger := NewLoggerWithWriter(&cfg, &buf)

	derived := logger.WithField("component", "worker")
	for i := 0; i < 25; i++ {
		derived.OperationFailure(context.Background(), "read", "user000000000001", time.Millisecond, errors.New("timeout"))
	}

	entries := decodeLines(t, &buf)
	if len(entries) != 3 {
		t.Errorf("Expected failures 1, 11 and 21 to be logged, got %d lines", len(entries))
	}
	if logger.OperationFailures() != 25 {
		t.Errorf("Expected shared failure count 25, got %d", logger.OperationFailures())
	}
}

func TestPerformanceGate(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "info", Format: "json"}
	logger := NewLoggerWithWriter(&cfg, &buf)

	logger.Performance(context.Background(), "throughput", 1200, "ops/s", nil)
	if buf.Len() != 0 {
		t.Error("Expected performance log to be gated off")
	}

	cfg.EnablePerformanceLog = true
	logger.Performance(context.Background(), "throughput", 1200, "ops/s", map[string]string{"operation": "read"})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["tag_operation"] != "read" {
		t.Errorf("Unexpected performance output: %v", entries)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "debug", Format: "json"}
	logger := NewLoggerWithWriter(&cfg, &buf)

	handler := LoggingMiddleware(logger, "run-1")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hi"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Header().Get(RunIDHeader) != "run-1" {
		t.Errorf("Expected run ID header, got %q", rec.Header().Get(RunIDHeader))
	}

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log line, got %d", len(entries))
	}
	if entries[0]["status_code"] != float64(http.StatusTeapot) || entries[0]["response_size"] != float64(2) {
		t.Errorf("Unexpected request log: %v", entries[0])
	}
}

func TestSetupEnvironmentLogging(t *testing.T) {
	cfg := config.DefaultConfig()
	SetupEnvironmentLogging(cfg, "soak")
	if cfg.Logging.LogSampling != 1000 {
		t.Errorf("Expected soak sampling, got %d", cfg.Logging.LogSampling)
	}

	SetupEnvironmentLogging(cfg, "unknown")
	if cfg.Logging.LogSampling != 1000 {
		t.Error("Expected unknown environment to leave config unchanged")
	}
}

func TestRunIDSanitization(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"normal ID", "run_abc123", "run_abc123"},
		{"ID with newlines", "run_abc\n123", "run_abc123"},
		{"ID with carriage returns", "run_abc\r123", "run_abc123"},
		{"ID with tabs", "run_abc\t123", "run_abc123"},
		{"very long ID", "run_" + strings.Repeat("x", 100), "run_" + strings.Repeat("x", 60)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := SanitizeRunID(tt.input); result != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestGenerateRunIDUnique(t *testing.T) {
	if GenerateRunID() == GenerateRunID() {
		t.Error("Expected different run IDs")
	}
}
