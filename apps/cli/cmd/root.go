package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"

	configFlag string
)

var rootCmd = &cobra.Command{
	Use:   "docshots",
	Short: "Generate documentation screenshots for chat integrations.",
	Long: `docshots replays stored integration fixtures against a locally
running chat server, triggers a message, and captures a screenshot of it
for use in the integration documentation.`,
	SilenceUsage: true,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", getEnvString("DOCSHOTS_CONFIG", ""), "Path to config file (env: DOCSHOTS_CONFIG)")
	rootCmd.AddCommand(shootCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
}
