package app

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrInstanceRunning is returned when another process already holds the instance lock.
var ErrInstanceRunning = errors.New("another blegw instance is already running")

// AcquireLock takes an exclusive, non-blocking lock on path. The gateway allows a single
// connection attempt at a time, so only one process may drive it.
func AcquireLock(path string) (*flock.Flock, error) {
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock file %s)", ErrInstanceRunning, path)
	}
	return lock, nil
}
