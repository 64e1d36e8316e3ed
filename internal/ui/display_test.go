package ui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/tonimelisma/pbi-refresh-monitor/pkg/powerbi"
)

func init() {
	color.NoColor = true
}

func testSnapshot() powerbi.RunSnapshot {
	const ts = "05/03/2024 - 10:00:00"
	snap := powerbi.RunSnapshot{}
	snap.Merge(ts, map[string]powerbi.WorkspaceRecords{
		"Finance": {
			"Sales":  powerbi.NewReportRecord("Finance", "Sales", "Relatório", "05/03/2024 08:00", "06/03/2024 08:00", ts, powerbi.WarningNone),
			"Costs":  powerbi.NewReportRecord("Finance", "Costs", "Fluxo de dados", "05/03/2024 07:00", "N/D", ts, powerbi.WarningDataflowButton),
			"Budget": powerbi.NewReportRecord("Finance", "Budget", "Relatório", "01/03/2024 07:00", "06/03/2024 07:00", ts, powerbi.WarningNone),
		},
	})
	snap.Merge("04/03/2024 - 10:00:00", map[string]powerbi.WorkspaceRecords{
		"HR": {"Heads": powerbi.NewReportRecord("HR", "Heads", "Relatório", "04/03/2024 08:00", "N/D", "04/03/2024 - 10:00:00", powerbi.WarningNone)},
	})
	return snap
}

func TestDisplaySnapshot(t *testing.T) {
	var buf bytes.Buffer
	DisplaySnapshot(&buf, testSnapshot(), "")
	out := buf.String()

	assert.Contains(t, out, "Run 04/03/2024 - 10:00:00")
	assert.Contains(t, out, "Run 05/03/2024 - 10:00:00")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Run 04/03")), bytes.Index(buf.Bytes(), []byte("Run 05/03")))
	assert.Contains(t, out, "3 item(s): 1 failed, 1 not refreshed today, 1 schedule(s) cancelled")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "stale")
}

func TestDisplaySnapshotSingleRun(t *testing.T) {
	var buf bytes.Buffer
	DisplaySnapshot(&buf, testSnapshot(), "04/03/2024 - 10:00:00")

	assert.Contains(t, buf.String(), "Heads")
	assert.NotContains(t, buf.String(), "Sales")
}

func TestDisplaySnapshotUnknownRun(t *testing.T) {
	var buf bytes.Buffer
	DisplaySnapshot(&buf, testSnapshot(), "01/01/2000 - 00:00:00")
	assert.Equal(t, "No run recorded at 01/01/2000 - 00:00:00.\n", buf.String())
}

func TestDisplaySnapshotEmpty(t *testing.T) {
	var buf bytes.Buffer
	DisplaySnapshot(&buf, powerbi.RunSnapshot{}, "")
	assert.Equal(t, "No runs recorded yet.\n", buf.String())
}

func TestDisplayWorkspaces(t *testing.T) {
	var buf bytes.Buffer
	DisplayWorkspaces(&buf, []powerbi.WorkspaceRef{{ID: "g1", Name: "Finance"}, {ID: "g2", Name: "Sales"}})

	out := buf.String()
	assert.Contains(t, out, "g1")
	assert.Contains(t, out, "Finance")
	assert.Contains(t, out, "Sales")

	buf.Reset()
	DisplayWorkspaces(&buf, nil)
	assert.Equal(t, "No workspaces found for this account.\n", buf.String())
}

func TestProgressReporter(t *testing.T) {
	report := ProgressReporter()
	assert.NotPanics(t, func() {
		report(1, 2, powerbi.WorkspaceRef{ID: "g1", Name: "Finance"}, nil)
		report(2, 2, powerbi.WorkspaceRef{ID: "g2"}, errors.New("boom"))
	})
}
