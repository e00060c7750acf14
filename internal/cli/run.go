package cli

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"backtest-lab/internal/config"
	"backtest-lab/internal/dataset"
	"backtest-lab/internal/orchestrator"
)

var artifactsDir string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one backtest run from the configured dataset and strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		loaded, err := dataset.Load(cfg.Dataset.Path, dataset.Options{
			DatasetID:  cfg.Dataset.DatasetID,
			CalendarID: cfg.Dataset.CalendarID,
			BarMinutes: cfg.Dataset.BarMinutes,
		})
		if err != nil {
			return err
		}
		logger.Printf("dataset %s: %d bars, %d gaps, %d duplicates",
			loaded.Snapshot.DatasetID, loaded.Snapshot.RowCount,
			loaded.Snapshot.GapCount, loaded.Snapshot.DuplicateCount)

		s, cleanup, err := buildStores(ctx, cfg.Storage, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		orch := orchestrator.New(orchestrator.Options{
			Config:          cfg.Run.ToRunConfig(),
			Series:          loaded.Series,
			Snapshot:        loaded.Snapshot,
			ManifestStore:   s.manifests,
			TradeStore:      s.trades,
			EquityStore:     s.equity,
			ValidationStore: s.validations,
			Logger:          logger,
		})

		result, runErr := orch.Run(ctx)
		if result == nil {
			return runErr
		}

		printSummary(cmd, result)

		if artifactsDir != "" {
			if err := writeArtifacts(artifactsDir, result); err != nil {
				return err
			}
			logger.Printf("artifacts written to %s", artifactsDir)
		}

		return runErr
	},
}

func printSummary(cmd *cobra.Command, result *orchestrator.RunResult) {
	out := cmd.OutOrStdout()
	m := result.Manifest

	fmt.Fprintf(out, "run_id:       %s\n", m.RunID)
	fmt.Fprintf(out, "run_hash:     %s\n", m.RunHash)
	fmt.Fprintf(out, "status:       %s\n", m.Status)
	if m.FailureCause != "" {
		fmt.Fprintf(out, "cause:        %s\n", m.FailureCause)
	}
	fmt.Fprintf(out, "violations:   %d\n", m.Violations.ViolationCount)

	if result.Metrics != nil {
		fmt.Fprintf(out, "return:       %.6f\n", result.Metrics.CumulativeReturn)
		fmt.Fprintf(out, "sharpe:       %.4f\n", result.Metrics.Sharpe)
		fmt.Fprintf(out, "trades:       %d\n", result.Metrics.TradeCount)
	}
	if result.Validation != nil {
		for _, r := range result.Validation.Results {
			if r.Skipped {
				fmt.Fprintf(out, "%s: skipped (%s)\n", r.Method, r.SkipReason)
				continue
			}
			if r.PValue != nil {
				fmt.Fprintf(out, "%s: p=%.4f over %d trials\n", r.Method, *r.PValue, r.TrialCount)
			}
		}
	}
	if result.Robustness != nil {
		fmt.Fprintf(out, "robustness:   %.8f\n", result.Robustness.Composite)
	}
}

// writeArtifacts dumps every artifact encoding under dir, one file per
// descriptor name.
func writeArtifacts(dir string, result *orchestrator.RunResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	names := make([]string, 0, len(result.Artifacts))
	for name := range result.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), result.Artifacts[name], 0o644); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	runCmd.Flags().StringVar(&artifactsDir, "artifacts-dir", "", "write artifact files to this directory")
	rootCmd.AddCommand(runCmd)
}
