// Package ui (display.go) formats run snapshots and workspace lists for the
// console, and provides the progress bar and the standardized success and
// error messages of the CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/tonimelisma/pbi-refresh-monitor/pkg/powerbi"
)

var (
	okText   = color.New(color.FgGreen).SprintFunc()
	failText = color.New(color.FgRed, color.Bold).SprintFunc()
	warnText = color.New(color.FgYellow).SprintFunc()
	header   = color.New(color.Bold).SprintFunc()
)

// Success prints a green confirmation to standard output.
func Success(msg string, args ...any) {
	fmt.Fprintln(color.Output, okText(fmt.Sprintf(msg, args...)))
}

// PrintError prints err in red to standard error.
func PrintError(err error) {
	fmt.Fprintln(color.Error, failText("Error: ")+err.Error())
}

// DisplayWorkspaces prints one line per workspace.
func DisplayWorkspaces(w io.Writer, refs []powerbi.WorkspaceRef) {
	if len(refs) == 0 {
		fmt.Fprintln(w, "No workspaces found for this account.")
		return
	}

	fmt.Fprintln(w, header(fmt.Sprintf("%-38s %-40s", "ID", "Name")))
	fmt.Fprintln(w, strings.Repeat("-", 79))
	for _, ref := range refs {
		fmt.Fprintf(w, "%-38s %-40.40s\n", ref.ID, ref.Name)
	}
}

// DisplaySnapshot prints the records of every run in snap, or only of
// timestamp when it is not empty, followed by a per-run summary.
func DisplaySnapshot(w io.Writer, snap powerbi.RunSnapshot, timestamp string) {
	if timestamp != "" {
		run, ok := snap[timestamp]
		if !ok {
			fmt.Fprintf(w, "No run recorded at %s.\n", timestamp)
			return
		}
		snap = powerbi.RunSnapshot{timestamp: run}
	}
	if len(snap) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return
	}

	records := snap.Records()
	for _, ts := range snap.Timestamps() {
		fmt.Fprintln(w, header("Run "+ts))
		fmt.Fprintf(w, "%-25.25s %-35.35s %-18.18s %-18s %-8s %-18s\n",
			"Workspace", "Item", "Type", "Last refresh", "Status", "Next refresh")

		var total, failed, stale, cancelled int
		for _, r := range records {
			if r.Timestamp != ts {
				continue
			}
			rec := r.Record
			total++

			status := okText("ok")
			switch {
			case rec.UpdateFailed:
				failed++
				status = failText("failed")
			case !rec.RefreshedToday:
				stale++
				status = warnText("stale")
			}
			next := rec.NextRefreshText
			if rec.ScheduleCancelled {
				cancelled++
				next = warnText(next)
			}

			fmt.Fprintf(w, "%-25.25s %-35.35s %-18.18s %-18.18s %-8s %s\n",
				rec.WorkspaceName, rec.ItemName, rec.ItemType, rec.LastRefreshText, status, next)
		}

		fmt.Fprintf(w, "%d item(s): %d failed, %d not refreshed today, %d schedule(s) cancelled\n\n",
			total, failed, stale, cancelled)
	}
}

// NewWorkspaceProgress creates a progress bar counting scraped workspaces.
func NewWorkspaceProgress(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetDescription("Scraping workspaces"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionClearOnFinish(),
	)
}

// ProgressReporter returns a per-workspace callback that advances a bar
// created on first use, once the total is known.
func ProgressReporter() func(done, total int, ws powerbi.WorkspaceRef, err error) {
	var bar *progressbar.ProgressBar
	return func(done, total int, ws powerbi.WorkspaceRef, err error) {
		if bar == nil {
			bar = NewWorkspaceProgress(total)
		}
		label := ws.Name
		if label == "" {
			label = ws.ID
		}
		if err != nil {
			label += " (failed)"
		}
		bar.Describe(label)
		_ = bar.Set(done)
	}
}
