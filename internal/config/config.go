package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"kvbench/internal/workload"
)

type Config struct {
	Workload   WorkloadConfig   `yaml:"workload" json:"workload" toml:"workload"`
	Target     TargetConfig     `yaml:"target" json:"target" toml:"target"`
	Warmup     WarmupConfig     `yaml:"warmup" json:"warmup" toml:"warmup"`
	Stability  StabilityConfig  `yaml:"stability" json:"stability" toml:"stability"`
	Comparison ComparisonConfig `yaml:"comparison" json:"comparison" toml:"comparison"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging" toml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics" toml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing" json:"tracing" toml:"tracing"`
	Output     OutputConfig     `yaml:"output" json:"output" toml:"output"`
}

// CustomWorkload selects Workload.Proportions instead of a preset mix
const CustomWorkload = "custom"

type WorkloadConfig struct {
	Name            string                `yaml:"name" json:"name" toml:"name"`
	RecordCount     uint64                `yaml:"record_count" json:"record_count" toml:"record_count"`
	OperationCount  uint64                `yaml:"operation_count" json:"operation_count" toml:"operation_count"` // 0 = bounded by duration only
	Duration        time.Duration         `yaml:"duration" json:"duration" toml:"duration"`                      // 0 = bounded by operation count only
	Threads         int                   `yaml:"threads" json:"threads" toml:"threads"`
	Distribution    string                `yaml:"distribution" json:"distribution" toml:"distribution"` // empty = preset default
	ZipfianTheta    float64               `yaml:"zipfian_theta" json:"zipfian_theta" toml:"zipfian_theta"`
	ValueSize       int                   `yaml:"value_size" json:"value_size" toml:"value_size"`
	ScanLength      int                   `yaml:"scan_length" json:"scan_length" toml:"scan_length"`
	TargetOpsPerSec float64               `yaml:"target_ops_per_sec" json:"target_ops_per_sec" toml:"target_ops_per_sec"` // 0 = unthrottled
	Seed            uint64                `yaml:"seed" json:"seed" toml:"seed"`                                           // 0 = time seeded
	Proportions     workload.OperationMix `yaml:"proportions" json:"proportions" toml:"proportions"`
}

type TargetConfig struct {
	Driver      string        `yaml:"driver" json:"driver" toml:"driver"`
	Address     string        `yaml:"address" json:"address" toml:"address"`
	DataPath    string        `yaml:"data_path" json:"data_path" toml:"data_path"`
	InMemory    bool          `yaml:"in_memory" json:"in_memory" toml:"in_memory"`
	SyncWrites  bool          `yaml:"sync_writes" json:"sync_writes" toml:"sync_writes"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" toml:"timeout"`
	GRPCService string        `yaml:"grpc_service" json:"grpc_service" toml:"grpc_service"`
	Password    string        `yaml:"password" json:"password" toml:"password"`
	DB          int           `yaml:"db" json:"db" toml:"db"`
	PoolSize    int           `yaml:"pool_size" json:"pool_size" toml:"pool_size"`
}

type WarmupConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled" toml:"enabled"`
	Operations  uint64        `yaml:"operations" json:"operations" toml:"operations"`
	Duration    time.Duration `yaml:"duration" json:"duration" toml:"duration"`
	Window      time.Duration `yaml:"window" json:"window" toml:"window"`
	WindowCount int           `yaml:"window_count" json:"window_count" toml:"window_count"`
	CVThreshold float64       `yaml:"cv_threshold" json:"cv_threshold" toml:"cv_threshold"`
}

type StabilityConfig struct {
	Duration                    time.Duration `yaml:"duration" json:"duration" toml:"duration"`
	ThroughputSampleInterval    time.Duration `yaml:"throughput_sample_interval" json:"throughput_sample_interval" toml:"throughput_sample_interval"`
	MemoryCheckInterval         time.Duration `yaml:"memory_check_interval" json:"memory_check_interval" toml:"memory_check_interval"`
	MemoryLeakThresholdPercent  float64       `yaml:"memory_leak_threshold_percent" json:"memory_leak_threshold_percent" toml:"memory_leak_threshold_percent"`
	DegradationThresholdPercent float64       `yaml:"degradation_threshold_percent" json:"degradation_threshold_percent" toml:"degradation_threshold_percent"`
	Probe                       string        `yaml:"probe" json:"probe" toml:"probe"`
}

type ComparisonConfig struct {
	RegressionThresholdPercent float64 `yaml:"regression_threshold_percent" json:"regression_threshold_percent" toml:"regression_threshold_percent"`
}

type LoggingConfig struct {
	Level                string `yaml:"level" json:"level" toml:"level"`
	Format               string `yaml:"format" json:"format" toml:"format"`
	Output               string `yaml:"output" json:"output" toml:"output"`
	EnablePerformanceLog bool   `yaml:"enable_performance_log" json:"enable_performance_log" toml:"enable_performance_log"`
	LogSampling          int    `yaml:"log_sampling" json:"log_sampling" toml:"log_sampling"` // 0 = no sampling, N = log every Nth operation failure
}

type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled" toml:"enabled"`
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`
	Path          string `yaml:"path" json:"path" toml:"path"`
}

type TracingConfig struct {
	Enabled       bool              `yaml:"enabled" json:"enabled" toml:"enabled"`
	ServiceName   string            `yaml:"service_name" json:"service_name" toml:"service_name"`
	Exporter      string            `yaml:"exporter" json:"exporter" toml:"exporter"` // "console" or "otlp"
	OTLPEndpoint  string            `yaml:"otlp_endpoint" json:"otlp_endpoint" toml:"otlp_endpoint"`
	OTLPHeaders   map[string]string `yaml:"otlp_headers" json:"otlp_headers" toml:"otlp_headers"`
	OTLPInsecure  bool              `yaml:"otlp_insecure" json:"otlp_insecure" toml:"otlp_insecure"`
	SamplingRatio float64           `yaml:"sampling_ratio" json:"sampling_ratio" toml:"sampling_ratio"` // per-operation spans; phase spans are always kept
}

type OutputConfig struct {
	Format string `yaml:"format" json:"format" toml:"format"`
	File   string `yaml:"file" json:"file" toml:"file"` // empty = stdout
}

func Load(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func DefaultConfig() *Config {
	return &Config{
		Workload: WorkloadConfig{
			Name:           "a",
			RecordCount:    1000,
			OperationCount: 1000,
			Threads:        1,
			ZipfianTheta:   workload.DefaultZipfianTheta,
			ValueSize:      100,
			ScanLength:     100,
		},
		Target: TargetConfig{
			Driver:      "badger",
			Address:     "localhost:6379",
			DataPath:    "./data/bench",
			InMemory:    true,
			Timeout:     5 * time.Second,
			GRPCService: "kvbench.KV",
			PoolSize:    0,
		},
		Warmup: WarmupConfig{
			Enabled:     false,
			Operations:  0,
			Duration:    0,
			Window:      time.Second,
			WindowCount: 10,
			CVThreshold: 0.05,
		},
		Stability: StabilityConfig{
			Duration:                    time.Hour,
			ThroughputSampleInterval:    10 * time.Second,
			MemoryCheckInterval:         60 * time.Second,
			MemoryLeakThresholdPercent:  50,
			DegradationThresholdPercent: 20,
			Probe:                       "runtime",
		},
		Comparison: ComparisonConfig{
			RegressionThresholdPercent: 10,
		},
		Logging: LoggingConfig{
			Level:                "info",
			Format:               "text",
			Output:               "stderr",
			EnablePerformanceLog: false,
			LogSampling:          0,
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			ListenAddress: ":2112",
			Path:          "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			ServiceName:   "kvbench",
			Exporter:      "console",
			OTLPEndpoint:  "localhost:4318",
			SamplingRatio: 0.01,
		},
		Output: OutputConfig{
			Format: "text",
		},
	}
}

func loadFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(configPath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to unmarshal YAML config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), config); err != nil {
			return fmt.Errorf("failed to unmarshal TOML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	return nil
}

func loadFromEnvironment(config *Config) {
	// Workload configuration
	if name := os.Getenv("KVB_WORKLOAD"); name != "" {
		config.Workload.Name = name
	}
	if v := os.Getenv("KVB_RECORD_COUNT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Workload.RecordCount = n
		}
	}
	if v := os.Getenv("KVB_OPERATION_COUNT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Workload.OperationCount = n
		}
	}
	if v := os.Getenv("KVB_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Workload.Duration = d
		}
	}
	if v := os.Getenv("KVB_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Workload.Threads = n
		}
	}
	if dist := os.Getenv("KVB_DISTRIBUTION"); dist != "" {
		config.Workload.Distribution = dist
	}

	// Target configuration
	if driver := os.Getenv("KVB_TARGET_DRIVER"); driver != "" {
		config.Target.Driver = driver
	}
	if addr := os.Getenv("KVB_TARGET_ADDRESS"); addr != "" {
		config.Target.Address = addr
	}
	if dataPath := os.Getenv("KVB_TARGET_DATA_PATH"); dataPath != "" {
		config.Target.DataPath = dataPath
	}
	if inMemory := os.Getenv("KVB_TARGET_IN_MEMORY"); inMemory != "" {
		if b, err := strconv.ParseBool(inMemory); err == nil {
			config.Target.InMemory = b
		}
	}
	if password := os.Getenv("KVB_TARGET_PASSWORD"); password != "" {
		config.Target.Password = password
	}

	// Logging configuration
	if level := os.Getenv("KVB_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("KVB_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	// Metrics configuration
	if enabled := os.Getenv("KVB_METRICS_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Metrics.Enabled = b
		}
	}
	if addr := os.Getenv("KVB_METRICS_ADDRESS"); addr != "" {
		config.Metrics.ListenAddress = addr
	}

	// Tracing configuration
	if enabled := os.Getenv("KVB_TRACING_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Tracing.Enabled = b
		}
	}
	if exporter := os.Getenv("KVB_TRACING_EXPORTER"); exporter != "" {
		config.Tracing.Exporter = exporter
	}
	if endpoint := os.Getenv("KVB_TRACING_ENDPOINT"); endpoint != "" {
		config.Tracing.OTLPEndpoint = endpoint
	}
	if v := os.Getenv("KVB_TRACING_SAMPLING_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Tracing.SamplingRatio = f
		}
	}

	// Output configuration
	if format := os.Getenv("KVB_OUTPUT_FORMAT"); format != "" {
		config.Output.Format = format
	}
}

// Validate reports every problem at once
func (c *Config) Validate() error {
	var result *multierror.Error

	// Workload validation
	if _, err := c.WorkloadDefinition(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Workload.RecordCount == 0 {
		result = multierror.Append(result, fmt.Errorf("record count must be positive"))
	}
	if c.Workload.Threads <= 0 {
		result = multierror.Append(result, fmt.Errorf("threads must be positive: %d", c.Workload.Threads))
	}
	if c.Workload.OperationCount == 0 && c.Workload.Duration <= 0 {
		result = multierror.Append(result, fmt.Errorf("either operation count or duration must be set"))
	}
	if c.Workload.Duration < 0 {
		result = multierror.Append(result, fmt.Errorf("duration cannot be negative"))
	}
	if c.Workload.ZipfianTheta <= 0 || c.Workload.ZipfianTheta >= 1 {
		result = multierror.Append(result, fmt.Errorf("%w: %v", workload.ErrInvalidTheta, c.Workload.ZipfianTheta))
	}
	if c.Workload.ValueSize < 0 {
		result = multierror.Append(result, fmt.Errorf("value size cannot be negative"))
	}
	if c.Workload.ScanLength < 1 {
		result = multierror.Append(result, fmt.Errorf("scan length must be at least 1"))
	}
	if c.Workload.TargetOpsPerSec < 0 {
		result = multierror.Append(result, fmt.Errorf("target ops/sec cannot be negative"))
	}

	// Target validation
	switch strings.ToLower(c.Target.Driver) {
	case "badger":
		if !c.Target.InMemory && c.Target.DataPath == "" {
			result = multierror.Append(result, fmt.Errorf("data path cannot be empty when not using in-memory storage"))
		}
	case "redis":
		if c.Target.Address == "" {
			result = multierror.Append(result, fmt.Errorf("redis target requires an address"))
		}
	case "grpc":
		if c.Target.Address == "" {
			result = multierror.Append(result, fmt.Errorf("grpc target requires an address"))
		}
		if c.Target.GRPCService == "" {
			result = multierror.Append(result, fmt.Errorf("grpc target requires a service name"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported target driver: %s", c.Target.Driver))
	}
	if c.Target.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("target timeout cannot be negative"))
	}

	// Warmup validation
	if c.Warmup.Window <= 0 {
		result = multierror.Append(result, fmt.Errorf("warmup window must be positive"))
	}
	if c.Warmup.WindowCount <= 0 {
		result = multierror.Append(result, fmt.Errorf("warmup window count must be positive"))
	}
	if c.Warmup.CVThreshold <= 0 {
		result = multierror.Append(result, fmt.Errorf("coefficient of variation threshold must be positive"))
	}

	// Stability validation
	if c.Stability.Duration <= 0 {
		result = multierror.Append(result, fmt.Errorf("stability duration must be positive"))
	}
	if c.Stability.ThroughputSampleInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("throughput sample interval must be positive"))
	}
	if c.Stability.MemoryCheckInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("memory check interval must be positive"))
	}
	if c.Stability.MemoryLeakThresholdPercent <= 0 {
		result = multierror.Append(result, fmt.Errorf("memory leak threshold must be positive"))
	}
	if c.Stability.DegradationThresholdPercent <= 0 {
		result = multierror.Append(result, fmt.Errorf("degradation threshold must be positive"))
	}
	switch strings.ToLower(c.Stability.Probe) {
	case "runtime", "procfs":
	default:
		result = multierror.Append(result, fmt.Errorf("unknown memory probe: %s", c.Stability.Probe))
	}

	// Comparison validation
	if c.Comparison.RegressionThresholdPercent <= 0 {
		result = multierror.Append(result, fmt.Errorf("regression threshold must be positive"))
	}

	// Logging validation
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		result = multierror.Append(result, fmt.Errorf("invalid log level: %s", c.Logging.Level))
	}
	validFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		result = multierror.Append(result, fmt.Errorf("invalid log format: %s", c.Logging.Format))
	}

	// Metrics validation
	if c.Metrics.Enabled {
		if c.Metrics.ListenAddress == "" {
			result = multierror.Append(result, fmt.Errorf("metrics listen address cannot be empty when metrics are enabled"))
		}
		if c.Metrics.Path == "" {
			result = multierror.Append(result, fmt.Errorf("metrics path cannot be empty when metrics are enabled"))
		}
	}

	// Tracing validation
	if c.Tracing.Enabled {
		switch strings.ToLower(c.Tracing.Exporter) {
		case "console":
		case "otlp":
			if c.Tracing.OTLPEndpoint == "" {
				result = multierror.Append(result, fmt.Errorf("otlp exporter requires an endpoint"))
			}
		default:
			result = multierror.Append(result, fmt.Errorf("unsupported trace exporter: %s", c.Tracing.Exporter))
		}
		if c.Tracing.SamplingRatio < 0 || c.Tracing.SamplingRatio > 1 {
			result = multierror.Append(result, fmt.Errorf("sampling ratio must be within [0, 1]: %v", c.Tracing.SamplingRatio))
		}
	}

	// Output validation
	switch strings.ToLower(c.Output.Format) {
	case "text", "json", "markdown", "csv":
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported output format: %s", c.Output.Format))
	}

	return result.ErrorOrNil()
}

// WorkloadDefinition resolves the configured preset or custom mix, applying
// the distribution and scan length overrides.
func (c *Config) WorkloadDefinition() (workload.Definition, error) {
	var def workload.Definition
	if strings.EqualFold(c.Workload.Name, CustomWorkload) {
		def = workload.Definition{
			Name:         CustomWorkload,
			Description:  "Custom operation mix",
			Mix:          c.Workload.Proportions,
			Distribution: workload.DistributionZipfian,
		}
	} else {
		preset, err := workload.Preset(c.Workload.Name)
		if err != nil {
			return workload.Definition{}, err
		}
		def = preset
	}

	if err := def.Mix.Validate(); err != nil {
		return workload.Definition{}, err
	}
	if c.Workload.Distribution != "" {
		dist, err := workload.ParseDistribution(c.Workload.Distribution)
		if err != nil {
			return workload.Definition{}, err
		}
		def.Distribution = dist
	}
	if c.Workload.ScanLength > 0 {
		def.MaxScanLength = c.Workload.ScanLength
	}
	return def, nil
}

func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
