package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tonimelisma/pbi-refresh-monitor/pkg/powerbi"
)

// snapshotsFile holds every archived run, keyed by run timestamp.
const snapshotsFile = "snapshots.json"

// SnapshotsPath returns the archive file path.
func (m *Manager) SnapshotsPath() string {
	return filepath.Join(m.stateDir, snapshotsFile)
}

// LoadSnapshots returns the archived runs. A missing archive is an empty
// snapshot, not an error.
func (m *Manager) LoadSnapshots() (powerbi.RunSnapshot, error) {
	if err := m.ensureStateDir(); err != nil {
		return nil, err
	}

	var snap powerbi.RunSnapshot
	err := withFileLock(m.SnapshotsPath(), func() error {
		var err error
		snap, err = m.readSnapshots()
		return err
	})
	return snap, err
}

// SaveSnapshot stores every run of snap in the archive. A run already
// archived under the same timestamp is replaced; other runs are kept.
func (m *Manager) SaveSnapshot(snap powerbi.RunSnapshot) error {
	if err := m.ensureStateDir(); err != nil {
		return err
	}

	return withFileLock(m.SnapshotsPath(), func() error {
		archive, err := m.readSnapshots()
		if err != nil {
			return err
		}
		for ts, run := range snap {
			archive[ts] = run
		}

		data, err := json.MarshalIndent(archive, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling snapshots: %w", err)
		}

		tmp := m.SnapshotsPath() + ".tmp"
		if err := os.WriteFile(tmp, data, 0600); err != nil {
			return fmt.Errorf("writing snapshots: %w", err)
		}
		return os.Rename(tmp, m.SnapshotsPath())
	})
}

// readSnapshots reads the archive; the caller holds the lock.
func (m *Manager) readSnapshots() (powerbi.RunSnapshot, error) {
	snap := make(powerbi.RunSnapshot)

	data, err := os.ReadFile(m.SnapshotsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return nil, fmt.Errorf("reading snapshots file '%s': %w", m.SnapshotsPath(), err)
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshalling snapshots from '%s': %w", m.SnapshotsPath(), err)
	}
	return snap, nil
}
