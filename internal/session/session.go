// Package session manages the on-disk state kept between runs: the archive
// of past run snapshots and the lock that keeps two runs from sharing one
// browser profile. File locking guards every read and write, since a
// scheduled run and a manual `snapshot show` may overlap.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the lock on a state file.
var ErrLocked = errors.New("state file is locked by another instance")

// Manager handles state files in one directory.
type Manager struct {
	stateDir string
}

// NewManager creates a manager using the user config directory.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("could not get user config directory: %w", err)
	}
	return &Manager{
		stateDir: filepath.Join(configDir, "pbi-refresh-monitor"),
	}, nil
}

// NewManagerWithStateDir creates a manager with a custom state directory.
func NewManagerWithStateDir(stateDir string) *Manager {
	return &Manager{stateDir: stateDir}
}

// StateDir returns the directory holding the state files.
func (m *Manager) StateDir() string {
	return m.stateDir
}

func (m *Manager) ensureStateDir() error {
	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("creating state directory '%s': %w", m.stateDir, err)
	}
	return nil
}

// withFileLock runs fn while holding the lock file next to path.
func withFileLock(path string, fn func() error) error {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring file lock for '%s': %w", path, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrLocked, path)
	}
	defer lock.Unlock()
	return fn()
}
