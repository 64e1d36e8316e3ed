package session

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

const runLockFile = "run.lock"

// RunLock is held for the duration of one scrape run.
type RunLock struct {
	lock *flock.Flock
}

// AcquireRunLock takes the run lock without blocking. It fails with
// ErrLocked while another run is in progress.
func (m *Manager) AcquireRunLock() (*RunLock, error) {
	if err := m.ensureStateDir(); err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(m.stateDir, runLockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: another run is in progress", ErrLocked)
	}
	return &RunLock{lock: lock}, nil
}

// Release frees the run lock.
func (l *RunLock) Release() error {
	return l.lock.Unlock()
}
