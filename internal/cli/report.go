package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"backtest-lab/internal/config"
	"backtest-lab/internal/reporting"
)

var reportFormat string

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Render a stored run as Markdown or CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		s, cleanup, err := buildStores(ctx, cfg.Storage, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		gen := reporting.NewGenerator(s.manifests, s.trades, s.equity, s.validations, cfg.Dataset.BarMinutes)
		report, err := gen.Generate(ctx, args[0])
		if err != nil {
			return err
		}

		switch reportFormat {
		case "markdown", "md":
			fmt.Fprint(cmd.OutOrStdout(), reporting.RenderMarkdown(report))
		case "csv":
			fmt.Fprint(cmd.OutOrStdout(), reporting.RenderCSV(report))
		default:
			return fmt.Errorf("unknown format %q (markdown|csv)", reportFormat)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "markdown", "output format: markdown or csv")
	rootCmd.AddCommand(reportCmd)
}
