package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kvbench/internal/config"
	"kvbench/internal/logging"
	"kvbench/internal/monitoring"
	"kvbench/internal/report"
	"kvbench/internal/runner"
	"kvbench/internal/stability"
	"kvbench/internal/target"
	"kvbench/internal/tracing"
)

// options holds the flags shared by every benchmark command. Flags only
// override the config file when set explicitly.
type options struct {
	configPath  string
	environment string
	workload    string
	driver      string
	address     string
	threads     int
	duration    time.Duration
	format      string
	output      string
	runID       string
}

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	return newRootCmd(&options{})
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kvbench",
		Short:         "kvbench drives YCSB-style workloads against key-value stores.",
		SilenceUsage:  true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML or TOML configuration file")
	flags.StringVar(&opts.environment, "env", "", "Logging preset: development, production, test or soak")
	flags.StringVarP(&opts.workload, "workload", "w", "", "Workload preset a-f, or custom")
	flags.StringVar(&opts.driver, "driver", "", "Target driver: badger, redis or grpc")
	flags.StringVar(&opts.address, "address", "", "Target address")
	flags.IntVarP(&opts.threads, "threads", "t", 0, "Number of worker goroutines")
	flags.DurationVarP(&opts.duration, "duration", "d", 0, "Run duration; stability duration for the stability command")
	flags.StringVarP(&opts.format, "format", "f", "", "Output format: text, json, markdown or csv")
	flags.StringVarP(&opts.output, "output", "o", "", "Write the report to this file instead of stdout")
	flags.StringVar(&opts.runID, "run-id", "", "Run identifier used in logs and reports")

	cmd.AddCommand(
		loadCmd(opts),
		runCmd(opts),
		stabilityCmd(opts),
		compareCmd(opts),
		serveCmd(opts),
	)

	return cmd
}

// loadConfig reads the config file, applies explicitly set flags and
// validates the result
func (o *options) loadConfig(cmd *cobra.Command, stabilityRun bool) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if o.environment != "" {
		logging.SetupEnvironmentLogging(cfg, o.environment)
	}
	if flags.Changed("workload") {
		cfg.Workload.Name = o.workload
	}
	if flags.Changed("driver") {
		cfg.Target.Driver = o.driver
	}
	if flags.Changed("address") {
		cfg.Target.Address = o.address
	}
	if flags.Changed("threads") {
		cfg.Workload.Threads = o.threads
	}
	if flags.Changed("duration") {
		if stabilityRun {
			cfg.Stability.Duration = o.duration
		} else {
			cfg.Workload.Duration = o.duration
		}
	}
	if flags.Changed("format") {
		cfg.Output.Format = o.format
	}
	if flags.Changed("output") {
		cfg.Output.File = o.output
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// session bundles what every benchmark command sets up and tears down
type session struct {
	cfg    *config.Config
	logger *logging.Logger
	exec   target.Executor
	runner *runner.Runner
	status *monitoring.StatusServer
	tracer *tracing.Service
}

func (o *options) openSession(cmd *cobra.Command, stabilityRun bool) (*session, error) {
	cfg, err := o.loadConfig(cmd, stabilityRun)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(&cfg.Logging)

	exec, err := target.New(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("open target: %w", err)
	}

	tracer, err := tracing.New(cfg.Tracing, os.Stderr)
	if err != nil {
		exec.Close()
		return nil, err
	}

	runnerOpts := []runner.Option{runner.WithTracing(tracer)}
	if o.runID != "" {
		runnerOpts = append(runnerOpts, runner.WithRunID(o.runID))
	}
	r, err := runner.New(cfg, exec, logger, runnerOpts...)
	if err != nil {
		exec.Close()
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger, exec: exec, runner: r, tracer: tracer}
	if cfg.Metrics.Enabled {
		if err := s.startStatusServer(); err != nil {
			s.close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) startStatusServer() error {
	probe, err := stability.NewProbe(s.cfg.Stability.Probe)
	if err != nil {
		return err
	}
	health := monitoring.NewHealthManager()
	health.RegisterChecker(monitoring.NewTargetHealthChecker(s.exec, 0))
	health.RegisterChecker(monitoring.NewMemoryHealthChecker(probe, 0))
	health.RegisterChecker(monitoring.NewRunHealthChecker(s.runner, 50))

	s.status = monitoring.NewStatusServer(s.cfg.Metrics, s.runner, health, s.logger, s.runner.RunID())
	return s.status.Start()
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.status != nil {
		s.status.Shutdown(ctx)
	}
	if err := s.tracer.Close(ctx); err != nil {
		s.logger.WarnContext(ctx, "Failed to flush traces", "error", err)
	}
	if err := s.exec.Close(); err != nil {
		s.logger.WarnContext(ctx, "Failed to close target", "error", err)
	}
}

func (s *session) format() (report.Format, error) {
	return report.ParseFormat(s.cfg.Output.Format)
}

// withOutput runs write against the configured output file, or the command's
// stdout when none is set
func withOutput(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
