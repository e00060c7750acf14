package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"backtest-lab/internal/config"
	"backtest-lab/internal/dataset"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/orchestrator"
	"backtest-lab/internal/verification"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <run-id>",
	Short: "Replay a stored run and compare against the persisted records",
	Long: `verify re-executes the pipeline from the configured dataset and run
settings and compares the replayed trades, equity digest, and
validation distribution digests against what was stored. The config
file must describe the same run that produced the stored records; a
config-hash mismatch is reported before any comparison.`,
	Args: cobra.ExactArgs(1),
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
		runCfg := cfg.Run.ToRunConfig()

		s, cleanup, err := buildStores(ctx, cfg.Storage, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
			ManifestStore:   s.manifests,
			TradeStore:      s.trades,
			EquityStore:     s.equity,
			ValidationStore: s.validations,
			Replay:          replayFunc(runCfg, loaded, logger),
		})

		report, err := verifier.VerifyRun(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if report.Match() {
			fmt.Fprintf(out, "run %s verified: replay reproduces every stored record\n", report.RunID)
			return nil
		}

		fmt.Fprintf(out, "run %s diverged in %d fields:\n", report.RunID, len(report.Divergences))
		for _, d := range report.Divergences {
			fmt.Fprintf(out, "  %s: stored=%v replayed=%v\n", d.Field, d.Expected, d.Actual)
		}
		return fmt.Errorf("verification failed")
	},
}

// replayFunc re-runs the full pipeline without persistence and hands
// the outputs to the verifier.
func replayFunc(runCfg domain.RunConfig, loaded *dataset.Loaded, logger *log.Logger) verification.ReplayFunc {
	return func(ctx context.Context, m *domain.RunManifest) (*verification.ReplayOutput, error) {
		orch := orchestrator.New(orchestrator.Options{
			Config:   runCfg,
			Series:   loaded.Series,
			Snapshot: loaded.Snapshot,
			Logger:   logger,
		})
		result, err := orch.Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("replay run: %w", err)
		}

		out := &verification.ReplayOutput{
			RunHash: result.Manifest.RunHash,
			Trades:  result.Trades,
			Equity:  result.Equity,
		}
		if result.Validation != nil {
			out.Results = result.Validation.Results
		}
		return out, nil
	}
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
