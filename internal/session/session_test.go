package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/pbi-refresh-monitor/pkg/powerbi"
)

func run(ts, workspace, item string) powerbi.RunSnapshot {
	snap := powerbi.RunSnapshot{}
	snap.Merge(ts, map[string]powerbi.WorkspaceRecords{
		workspace: {item: {WorkspaceName: workspace, ItemName: item, ItemType: "Relatório"}},
	})
	return snap
}

func TestLoadSnapshotsMissingArchive(t *testing.T) {
	m := NewManagerWithStateDir(filepath.Join(t.TempDir(), "state"))

	snap, err := m.LoadSnapshots()
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestSaveSnapshotAccumulatesRuns(t *testing.T) {
	m := NewManagerWithStateDir(t.TempDir())

	require.NoError(t, m.SaveSnapshot(run("05/03/2024 - 10:00:00", "Finance", "Sales")))
	require.NoError(t, m.SaveSnapshot(run("06/03/2024 - 10:00:00", "HR", "Heads")))

	snap, err := m.LoadSnapshots()
	require.NoError(t, err)
	assert.Equal(t, []string{"05/03/2024 - 10:00:00", "06/03/2024 - 10:00:00"}, snap.Timestamps())
	assert.Equal(t, "Sales", snap["05/03/2024 - 10:00:00"]["Finance"]["Sales"].ItemName)

	info, err := os.Stat(m.SnapshotsPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSaveSnapshotReplacesSameRun(t *testing.T) {
	m := NewManagerWithStateDir(t.TempDir())

	require.NoError(t, m.SaveSnapshot(run("05/03/2024 - 10:00:00", "Finance", "Sales")))
	require.NoError(t, m.SaveSnapshot(run("05/03/2024 - 10:00:00", "Finance", "Costs")))

	snap, err := m.LoadSnapshots()
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, []string{"Costs"}, keys(snap["05/03/2024 - 10:00:00"]["Finance"]))
}

func TestLoadSnapshotsCorruptArchive(t *testing.T) {
	m := NewManagerWithStateDir(t.TempDir())
	require.NoError(t, os.WriteFile(m.SnapshotsPath(), []byte("{not json"), 0600))

	_, err := m.LoadSnapshots()
	assert.Error(t, err)
}

func TestRunLockIsExclusive(t *testing.T) {
	dir := t.TempDir()
	first := NewManagerWithStateDir(dir)
	second := NewManagerWithStateDir(dir)

	lock, err := first.AcquireRunLock()
	require.NoError(t, err)

	_, err = second.AcquireRunLock()
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lock.Release())

	again, err := second.AcquireRunLock()
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func keys(m powerbi.WorkspaceRecords) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
