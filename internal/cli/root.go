// Package cli implements the backtestlab command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "backtestlab",
	Short: "Deterministic backtest simulation and statistical validation",
	Long: `backtestlab runs single-asset strategy backtests with strict
causality enforcement, content-addressed run identity, and
permutation/bootstrap/walk-forward validation. Identical config and
dataset always reproduce identical output bytes.`,
	SilenceUsage: true,
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the command tree under ctx; cancellation
// propagates to every command as cooperative shutdown.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "configuration file")
}
