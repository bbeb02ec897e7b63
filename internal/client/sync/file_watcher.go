package sync

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/openmined/syncmirror/internal/utils"
	"github.com/rjeczalik/notify"
)

const (
	DefaultQuietPeriod = 2 * time.Second
	eventBufferSize    = 64
)

// FileWatcher turns bursts of local writes into a single change signal,
// sent once the tree has been quiet for the quiet period.
type FileWatcher struct {
	dir     string
	quiet   time.Duration
	ignore  *SyncIgnoreList
	raw     chan notify.EventInfo
	changes chan struct{}
	wg      sync.WaitGroup
}

func NewFileWatcher(dir string, quiet time.Duration, ignore *SyncIgnoreList) *FileWatcher {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &FileWatcher{
		dir:     dir,
		quiet:   quiet,
		ignore:  ignore,
		changes: make(chan struct{}, 1),
	}
}

// NewFileWatcherFor watches the local folder of engine with its ignore rules.
func NewFileWatcherFor(engine *SyncEngine, quiet time.Duration) *FileWatcher {
	ignore := NewSyncIgnoreList(engine.ignore.ignoreFile, engine.ignore.extra...)
	ignore.Load()
	return NewFileWatcher(engine.localDir, quiet, ignore)
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "dir", fw.dir)

	fw.raw = make(chan notify.EventInfo, eventBufferSize)
	if err := notify.Watch(filepath.Join(fw.dir, "..."), fw.raw, notify.Write, notify.Create, notify.Rename); err != nil {
		return err
	}

	paths := make(chan string, eventBufferSize)
	fw.wg.Add(2)
	go func() {
		defer fw.wg.Done()
		defer close(paths)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fw.raw:
				if !ok {
					return
				}
				select {
				case paths <- ev.Path():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	go func() {
		defer fw.wg.Done()
		fw.debounce(ctx, paths)
	}()
	return nil
}

// Stop detaches from the OS watcher and waits for the goroutines; the
// context passed to Start must be canceled first.
func (fw *FileWatcher) Stop() {
	if fw.raw != nil {
		notify.Stop(fw.raw)
	}
	fw.wg.Wait()
	slog.Info("file watcher stopped")
}

// Changes delivers one signal per quiet burst. Signals coalesce while the
// receiver is busy.
func (fw *FileWatcher) Changes() <-chan struct{} {
	return fw.changes
}

func (fw *FileWatcher) debounce(ctx context.Context, paths <-chan string) {
	timer := time.NewTimer(fw.quiet)
	timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case path, ok := <-paths:
			if !ok {
				timer.Stop()
				return
			}
			if fw.ignored(path) {
				continue
			}
			pending = true
			timer.Reset(fw.quiet)
		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			select {
			case fw.changes <- struct{}{}:
			default:
			}
		}
	}
}

func (fw *FileWatcher) ignored(path string) bool {
	rel, err := utils.RelSlash(fw.dir, path)
	if err != nil || rel == "" || strings.HasPrefix(rel, "../") {
		return true
	}
	return fw.ignore.ShouldIgnore(rel, utils.DirExists(path))
}
