// Package cli provides the papertrader command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "papertrader",
		Short: "Strategy backtesting and paper-trading engine",
		Long: `papertrader replays historical bars or paper-trades a watch-list with
configurable strategies, profiles and portfolio risk limits. All fills are
simulated; no orders ever reach a live venue.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newBacktestCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().String("config", "config/config.yaml", "path to the yaml run configuration")

	return rootCmd
}
