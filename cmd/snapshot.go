package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/config"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/session"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/ui"
)

// snapshotCmd groups the commands reading the local run archive. None of
// them needs credentials or a browser.
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect archived runs",
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print archived runs",
	Long:  `Prints every archived run, or the run given by --timestamp, or the most recent one with --latest.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := stateManager(cmd)
		if err != nil {
			return err
		}
		timestamp, _ := cmd.Flags().GetString("timestamp")
		latest, _ := cmd.Flags().GetBool("latest")
		return snapshotShowLogic(m, cmd.OutOrStdout(), timestamp, latest)
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the timestamps of archived runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := stateManager(cmd)
		if err != nil {
			return err
		}
		return snapshotListLogic(m, cmd.OutOrStdout())
	},
}

// stateManager resolves the archive location from --state-dir, then from
// settings.ini, then the default.
func stateManager(cmd *cobra.Command) (*session.Manager, error) {
	dir, _ := cmd.Flags().GetString("state-dir")
	if dir == "" {
		settingsFile, _ := cmd.Flags().GetString("settings")
		settings, err := config.LoadSettings(settingsFile)
		if err != nil {
			return nil, err
		}
		dir = settings.StateDir
	}
	if dir != "" {
		return session.NewManagerWithStateDir(dir), nil
	}
	return session.NewManager()
}

func snapshotShowLogic(m *session.Manager, w io.Writer, timestamp string, latest bool) error {
	snap, err := m.LoadSnapshots()
	if err != nil {
		return err
	}
	if latest && timestamp == "" {
		if ts := snap.Timestamps(); len(ts) > 0 {
			timestamp = ts[len(ts)-1]
		}
	}
	ui.DisplaySnapshot(w, snap, timestamp)
	return nil
}

func snapshotListLogic(m *session.Manager, w io.Writer) error {
	snap, err := m.LoadSnapshots()
	if err != nil {
		return err
	}
	timestamps := snap.Timestamps()
	if len(timestamps) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return nil
	}
	for _, ts := range timestamps {
		fmt.Fprintf(w, "%s  %d workspace(s)\n", ts, len(snap[ts]))
	}
	return nil
}

func init() {
	snapshotShowCmd.Flags().String("timestamp", "", "Show only the run recorded at this timestamp (dd/mm/yyyy - HH:MM:SS)")
	snapshotShowCmd.Flags().Bool("latest", false, "Show only the most recent run")
	snapshotCmd.AddCommand(snapshotShowCmd, snapshotListCmd)
	rootCmd.AddCommand(snapshotCmd)
}
