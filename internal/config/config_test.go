package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"

	"kvbench/internal/workload"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Workload.Name != "a" {
		t.Errorf("Expected default workload to be a, got %s", config.Workload.Name)
	}

	if config.Target.Driver != "badger" {
		t.Errorf("Expected default driver to be badger, got %s", config.Target.Driver)
	}

	if config.Stability.MemoryLeakThresholdPercent != 50 {
		t.Errorf("Expected default leak threshold to be 50, got %v", config.Stability.MemoryLeakThresholdPercent)
	}

	if config.Warmup.WindowCount != 10 || config.Warmup.CVThreshold != 0.05 {
		t.Errorf("Unexpected warmup defaults: %+v", config.Warmup)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "bench.yaml")

	configContent := `
workload:
  name: "workload_b"
  record_count: 5000
  operation_count: 20000
  threads: 8
  distribution: "uniform"

target:
  driver: "redis"
  address: "127.0.0.1:6380"
  timeout: 2s

stability:
  duration: 30m
  throughput_sample_interval: 5s

logging:
  level: "debug"
  format: "json"
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	config, err := Load(configFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Workload.RecordCount != 5000 {
		t.Errorf("Expected record count 5000, got %d", config.Workload.RecordCount)
	}
	if config.Workload.Threads != 8 {
		t.Errorf("Expected 8 threads, got %d", config.Workload.Threads)
	}
	if config.Target.Driver != "redis" || config.Target.Address != "127.0.0.1:6380" {
		t.Errorf("Unexpected target: %+v", config.Target)
	}
	if config.Target.Timeout != 2*time.Second {
		t.Errorf("Expected timeout 2s, got %v", config.Target.Timeout)
	}
	if config.Stability.Duration != 30*time.Minute {
		t.Errorf("Expected stability duration 30m, got %v", config.Stability.Duration)
	}
	if config.Stability.MemoryCheckInterval != 60*time.Second {
		t.Errorf("Expected default memory check interval to survive, got %v", config.Stability.MemoryCheckInterval)
	}

	def, err := config.WorkloadDefinition()
	if err != nil {
		t.Fatalf("Failed to resolve workload: %v", err)
	}
	if def.Name != "workload_b" {
		t.Errorf("Expected workload_b, got %s", def.Name)
	}
	if def.Distribution != workload.DistributionUniform {
		t.Errorf("Expected uniform override, got %s", def.Distribution)
	}
}

func TestLoadFromTOML(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "bench.toml")

	configContent := `
[workload]
name = "custom"
record_count = 100
operation_count = 500

[workload.proportions]
read = 0.7
scan = 0.3

[comparison]
regression_threshold_percent = 15.0
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	config, err := Load(configFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Comparison.RegressionThresholdPercent != 15 {
		t.Errorf("Expected threshold 15, got %v", config.Comparison.RegressionThresholdPercent)
	}

	def, err := config.WorkloadDefinition()
	if err != nil {
		t.Fatalf("Failed to resolve workload: %v", err)
	}
	if def.Mix.Read != 0.7 || def.Mix.Scan != 0.3 {
		t.Errorf("Unexpected custom mix: %+v", def.Mix)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "bench.ini")
	if err := os.WriteFile(configFile, []byte("x=1"), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	if _, err := Load(configFile); err == nil {
		t.Error("Expected error for unsupported config format")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("KVB_WORKLOAD", "c")
	t.Setenv("KVB_THREADS", "4")
	t.Setenv("KVB_DURATION", "90s")
	t.Setenv("KVB_TARGET_DRIVER", "grpc")
	t.Setenv("KVB_TARGET_ADDRESS", "10.0.0.1:9090")
	t.Setenv("KVB_LOG_LEVEL", "warn")
	t.Setenv("KVB_OUTPUT_FORMAT", "markdown")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Workload.Name != "c" {
		t.Errorf("Expected workload c, got %s", config.Workload.Name)
	}
	if config.Workload.Threads != 4 {
		t.Errorf("Expected 4 threads, got %d", config.Workload.Threads)
	}
	if config.Workload.Duration != 90*time.Second {
		t.Errorf("Expected duration 90s, got %v", config.Workload.Duration)
	}
	if config.Target.Driver != "grpc" || config.Target.Address != "10.0.0.1:9090" {
		t.Errorf("Unexpected target: %+v", config.Target)
	}
	if config.Logging.Level != "warn" {
		t.Errorf("Expected log level warn, got %s", config.Logging.Level)
	}
	if config.Output.Format != "markdown" {
		t.Errorf("Expected markdown output, got %s", config.Output.Format)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	config := DefaultConfig()
	config.Workload.Threads = 0
	config.Workload.ZipfianTheta = 1.5
	config.Target.Driver = "cassandra"
	config.Output.Format = "xml"

	err := config.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}

	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("Expected multierror, got %T", err)
	}
	if len(merr.Errors) != 4 {
		t.Errorf("Expected 4 errors, got %d: %v", len(merr.Errors), err)
	}
	if !errors.Is(err, workload.ErrInvalidTheta) {
		t.Error("Expected theta error to wrap ErrInvalidTheta")
	}
}

func TestValidateRejectsInvalidCustomMix(t *testing.T) {
	config := DefaultConfig()
	config.Workload.Name = CustomWorkload
	config.Workload.Proportions = workload.OperationMix{Read: 0.6, Update: 0.6}

	err := config.Validate()
	if !errors.Is(err, workload.ErrInvalidProportions) {
		t.Errorf("Expected ErrInvalidProportions, got %v", err)
	}
}

func TestValidateNeedsABound(t *testing.T) {
	config := DefaultConfig()
	config.Workload.OperationCount = 0
	config.Workload.Duration = 0

	if err := config.Validate(); err == nil {
		t.Error("Expected error when neither operation count nor duration is set")
	}

	config.Workload.Duration = time.Minute
	if err := config.Validate(); err != nil {
		t.Errorf("Expected duration-bounded config to be valid, got %v", err)
	}
}

func TestValidateTracing(t *testing.T) {
	config := DefaultConfig()
	config.Tracing.Exporter = "zipkin"
	if err := config.Validate(); err != nil {
		t.Errorf("Expected disabled tracing to skip validation, got %v", err)
	}

	config.Tracing.Enabled = true
	config.Tracing.SamplingRatio = 2
	err := config.Validate()
	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) != 2 {
		t.Errorf("Expected exporter and ratio errors, got %v", err)
	}

	config.Tracing.Exporter = "otlp"
	config.Tracing.OTLPEndpoint = ""
	config.Tracing.SamplingRatio = 0.5
	if err := config.Validate(); err == nil {
		t.Error("Expected otlp exporter without endpoint to be rejected")
	}
}

func TestString(t *testing.T) {
	s := DefaultConfig().String()
	if !strings.Contains(s, "record_count: 1000") {
		t.Errorf("Expected YAML rendering, got:\n%s", s)
	}
}
