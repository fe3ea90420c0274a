package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFile is the name of the lock file inside the state directory.
const LockFile = ".docsync.lock"

// Lock is an exclusive cross-process lock on a state directory, so only one
// sync engine writes a given hash record and collection at a time.
type Lock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// AcquireLock takes the lock for dir without blocking.
// Returns ErrLocked if another process holds it.
func AcquireLock(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	path := filepath.Join(dir, LockFile)
	l := &Lock{path: path, flock: flock.New(path)}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	l.locked = true
	return l, nil
}

// Path returns the path to the lock file.
func (l *Lock) Path() string { return l.path }

// Release unlocks. It's safe to call Release multiple times.
func (l *Lock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
