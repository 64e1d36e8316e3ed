// Package cmd (root.go) defines the root command of the pbi-refresh-monitor
// CLI, its global flags and the process exit behaviour.
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/config"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/ui"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pbi-refresh-monitor",
	Short: "Collect the refresh status of every Power BI workspace",
	Long: `pbi-refresh-monitor signs in to Power BI with a headless browser, visits
every workspace the account can see and records, per item, when it was last
refreshed, whether that refresh failed and whether a next refresh is scheduled.

Each run is archived locally and published as an Excel workbook to the
SharePoint site named in settings.ini.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM
// and exits with status 1 on any error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			ui.PrintError(err)
		}
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging, including HTTP request dumps")
	rootCmd.PersistentFlags().String("env-file", config.DefaultEnvFile, "File with TENANT_ID, CLIENT_ID, EMAIL and PASSWORD")
	rootCmd.PersistentFlags().String("settings", config.DefaultSettingsFile, "INI file with the [INIT] settings")
	rootCmd.PersistentFlags().String("state-dir", "", "Directory of the run archive and lock (default is the user config dir)")
}
