package logging

import (
	"kvbench/internal/config"
)

// DevelopmentLoggingConfig returns logging configuration for interactive runs
func DevelopmentLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{
		Level:                "debug",
		Format:               "console",
		Output:               "stderr",
		EnablePerformanceLog: true,
		LogSampling:          0,
	}
}

// ProductionLoggingConfig returns logging configuration for CI and scheduled
// benchmark jobs
func ProductionLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{
		Level:                "info",
		Format:               "json",
		Output:               "stderr",
		EnablePerformanceLog: false,
		LogSampling:          0,
	}
}

// TestLoggingConfig returns logging configuration optimized for testing
func TestLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{
		Level:                "error",
		Format:               "json",
		Output:               "stderr",
		EnablePerformanceLog: false,
		LogSampling:          0,
	}
}

// SoakLoggingConfig returns logging configuration for long stability runs,
// where a failing target would otherwise flood the log
func SoakLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{
		Level:                "info",
		Format:               "json",
		Output:               "stderr",
		EnablePerformanceLog: true,
		LogSampling:          1000,
	}
}

// SetupEnvironmentLogging configures logging based on environment
func SetupEnvironmentLogging(cfg *config.Config, environment string) {
	switch environment {
	case "development", "dev":
		cfg.Logging = DevelopmentLoggingConfig()
	case "production", "prod", "ci":
		cfg.Logging = ProductionLoggingConfig()
	case "test", "testing":
		cfg.Logging = TestLoggingConfig()
	case "soak", "stability":
		cfg.Logging = SoakLoggingConfig()
	}
}
