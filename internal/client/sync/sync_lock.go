package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"github.com/openmined/syncmirror/internal/utils"
)

var ErrSyncAlreadyRunning = errors.New("sync already running")

// runLock admits one run at a time, within this process through a mutex and
// across processes through a lock file next to the metadata side-file.
type runLock struct {
	mu    sync.Mutex
	path  string
	flock *flock.Flock
}

func newRunLock(path string) *runLock {
	return &runLock{path: path, flock: flock.New(path)}
}

func (l *runLock) acquire() error {
	if !l.mu.TryLock() {
		return ErrSyncAlreadyRunning
	}

	if err := utils.EnsureParent(l.path); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("lock dir: %w", err)
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	if !locked {
		l.mu.Unlock()
		return ErrSyncAlreadyRunning
	}
	return nil
}

func (l *runLock) release() {
	if err := l.flock.Unlock(); err != nil {
		slog.Warn("unlock failed", "path", l.path, "error", err)
	}
	os.Remove(l.path)
	l.mu.Unlock()
}
