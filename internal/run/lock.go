package run

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrRunLocked is returned when another process holds a run lock.
var ErrRunLocked = errors.New("run is locked by another process")

// RunLock is held by the process executing a run for its whole lifetime.
type RunLock struct {
	fl *flock.Flock
}

func lockPath(stateDir, runID string) string {
	return filepath.Join(stateDir, "locks", runID+".lock")
}

// AcquireRunLock creates and locks <stateDir>/locks/<runID>.lock without blocking.
func AcquireRunLock(stateDir, runID string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Join(stateDir, "locks"), 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	fl := flock.New(lockPath(stateDir, runID))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", runID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunLocked, runID)
	}
	return &RunLock{fl: fl}, nil
}

// IsRunLocked reports whether a live process holds the run lock.
func IsRunLocked(stateDir, runID string) (bool, error) {
	path := lockPath(stateDir, runID)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("check lock %s: %w", runID, err)
	}
	if ok {
		_ = fl.Unlock()
		return false, nil
	}
	return true, nil
}

// Release releases the lock.
func (l *RunLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
