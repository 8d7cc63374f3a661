package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "robot-crypt",
	Short: "Rule-based crypto spot trading bot (scalping / swing)",
	Long: `robot-crypt polls market data on a fixed interval, runs the configured
strategy for each symbol and manages the position lifecycle.

Configuration comes from environment variables (and .env). Risk parameters
can be overridden per strategy with RISK_PROFILE_FILE (YAML).

Without a subcommand the bot runs, same as "robot-crypt run".`,
	SilenceUsage: true,
	RunE:         runRun,
}

// Execute 入口，由 main 调用
func Execute() error {
	return rootCmd.Execute()
}
