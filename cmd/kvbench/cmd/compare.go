package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"kvbench/internal/comparison"
	"kvbench/internal/report"
)

var (
	errRegressions     = errors.New("performance regressions detected")
	errStabilityFailed = errors.New("stability checks failed")
)

func compareCmd(opts *options) *cobra.Command {
	var (
		baseline  string
		candidate string
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare two saved JSON results and fail on regressions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd, false)
			if err != nil {
				return err
			}
			format, err := report.ParseFormat(cfg.Output.Format)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Comparison.RegressionThresholdPercent
			}
			if threshold <= 0 {
				return fmt.Errorf("threshold must be positive, got %v", threshold)
			}

			baselines, err := report.LoadSummaries(baseline)
			if err != nil {
				return fmt.Errorf("baseline: %w", err)
			}
			candidates, err := report.LoadSummaries(candidate)
			if err != nil {
				return fmt.Errorf("candidate: %w", err)
			}

			results := comparison.CompareAll(baselines, candidates, threshold)
			if err := withOutput(cmd, cfg.Output.File, func(w io.Writer) error {
				return report.RenderComparison(w, format, results)
			}); err != nil {
				return err
			}

			for _, r := range results {
				if r.IsRegression {
					return errRegressions
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&baseline, "baseline", "", "Baseline result file (JSON)")
	flags.StringVar(&candidate, "candidate", "", "Candidate result file (JSON)")
	flags.Float64Var(&threshold, "threshold", comparison.DefaultRegressionThresholdPercent, "Regression threshold in percent")
	cmd.MarkFlagRequired("baseline")
	cmd.MarkFlagRequired("candidate")
	return cmd
}
