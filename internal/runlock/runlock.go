// Package runlock keeps two extraction runs from writing the same output
// directory at once, e.g. a watch session and a manual run.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileName is the lock file created inside the output directory.
const FileName = ".nodules.lock"

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("output directory is in use by another run")

// Lock is an exclusive lock on one output directory.
type Lock struct {
	dir  string
	lock *flock.Flock
}

// New creates a lock for dir. Nothing is acquired yet.
func New(dir string) *Lock {
	return &Lock{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, FileName)),
	}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.lock.Path()
}

// Acquire takes the lock without blocking, creating the directory when
// needed. Returns ErrLocked if another process holds it.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%s: %w", l.dir, ErrLocked)
	}
	return nil
}

// Release releases the lock (called on shutdown). The lock file is left in
// place; removing it would race with a process about to lock it.
func (l *Lock) Release() error {
	if l.lock.Locked() {
		return l.lock.Unlock()
	}
	return nil
}
