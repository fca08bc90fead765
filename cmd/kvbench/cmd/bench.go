package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kvbench/internal/report"
)

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func loadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Insert the initial record set into the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSession(cmd, false)
			if err != nil {
				return err
			}
			defer s.close()

			format, err := s.format()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			rep, err := s.runner.Load(ctx)
			if err != nil {
				return err
			}
			return withOutput(cmd, s.cfg.Output.File, func(w io.Writer) error {
				return report.Render(w, format, rep)
			})
		},
	}
}

func runCmd(opts *options) *cobra.Command {
	var load bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured workload and report its measured phase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSession(cmd, false)
			if err != nil {
				return err
			}
			defer s.close()

			format, err := s.format()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			if load {
				loaded, err := s.runner.Load(ctx)
				if err != nil {
					return err
				}
				s.logger.InfoContext(ctx, "Load phase complete",
					"records", loaded.Overall.SuccessfulOps, "failed", loaded.Overall.FailedOps,
					"throughput", loaded.Overall.Throughput)
			}
			rep, err := s.runner.Run(ctx)
			if err != nil {
				return err
			}
			return withOutput(cmd, s.cfg.Output.File, func(w io.Writer) error {
				return report.Render(w, format, rep)
			})
		},
	}
	cmd.Flags().BoolVar(&load, "load", false, "Load the record set before running")
	return cmd
}

func stabilityCmd(opts *options) *cobra.Command {
	var load bool
	cmd := &cobra.Command{
		Use:   "stability",
		Short: "Run a long soak and check for memory growth and throughput degradation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSession(cmd, true)
			if err != nil {
				return err
			}
			defer s.close()

			format, err := s.format()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			if load {
				if _, err := s.runner.Load(ctx); err != nil {
					return err
				}
			}
			rep, err := s.runner.RunStability(ctx)
			if err != nil {
				return err
			}
			if err := withOutput(cmd, s.cfg.Output.File, func(w io.Writer) error {
				return report.RenderStability(w, format, rep)
			}); err != nil {
				return err
			}
			if !rep.Result.Passed() {
				return errStabilityFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&load, "load", false, "Load the record set before the soak")
	return cmd
}
