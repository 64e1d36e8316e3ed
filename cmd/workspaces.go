package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/app"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/ui"
)

// workspacesCmd lists the workspaces a run would visit.
var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "List the workspaces visible to the account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return fmt.Errorf("initializing app for 'workspaces': %w", err)
		}
		defer a.Close()
		return workspacesLogic(cmd.Context(), a, cmd.OutOrStdout())
	},
}

func workspacesLogic(ctx context.Context, a *app.App, w io.Writer) error {
	refs, err := a.ListWorkspaces(ctx)
	if err != nil {
		return err
	}
	ui.DisplayWorkspaces(w, refs)
	return nil
}

func init() {
	rootCmd.AddCommand(workspacesCmd)
}
