package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/app"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/ui"
)

// runCmd performs one complete collection run.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape every workspace, archive the snapshot and publish it",
	Long: `Authenticates, lists the workspaces visible to the account and scrapes
their refresh status one after the other. Workspaces that keep failing are
skipped. The resulting snapshot is added to the local archive and, unless
--no-publish is given, uploaded to SharePoint as an Excel workbook.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return fmt.Errorf("initializing app for 'run': %w", err)
		}
		defer a.Close()

		noPublish, _ := cmd.Flags().GetBool("no-publish")
		output, _ := cmd.Flags().GetString("output")
		return runLogic(cmd.Context(), a, cmd.OutOrStdout(), app.RunOptions{
			Publish:    !noPublish,
			OutputPath: output,
			OnProgress: ui.ProgressReporter(),
		})
	},
}

func runLogic(ctx context.Context, a *app.App, w io.Writer, opts app.RunOptions) error {
	snap, err := a.Run(ctx, opts)
	for _, ts := range snap.Timestamps() {
		ui.DisplaySnapshot(w, snap, ts)
	}
	if err != nil {
		return err
	}

	if opts.OutputPath != "" {
		ui.Success("Snapshot written to %s", opts.OutputPath)
	}
	if opts.Publish {
		ui.Success("Snapshot published to SharePoint site '%s'", a.Config.Settings.SiteName)
	}
	return nil
}

func init() {
	runCmd.Flags().Bool("no-publish", false, "Skip the SharePoint upload")
	runCmd.Flags().StringP("output", "o", "", "Also write the snapshot as JSON to this file")
	rootCmd.AddCommand(runCmd)
}
