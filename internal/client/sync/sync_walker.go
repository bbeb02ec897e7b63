package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path"
)

// treeDir is one directory as seen from both sides.
type treeDir struct {
	RelPath   string // slash separated, "" for the root
	LocalPath string
	RemoteID  string
}

// treeEntry is one child listed by the authoritative side.
type treeEntry struct {
	Name    string
	RelPath string
	IsDir   bool
	// set by whichever side produced the entry
	local  *localEntry
	remote *remoteEntry
}

// treeSource lists the side that decides what exists.
type treeSource interface {
	list(ctx context.Context, dir *treeDir) ([]*treeEntry, error)
	countFiles(ctx context.Context, dir *treeDir) (int, error)
}

// treeSink applies entries to the receiving side.
type treeSink interface {
	enterDir(ctx context.Context, parent *treeDir, entry *treeEntry) (*treeDir, error)
	syncFile(ctx context.Context, dir *treeDir, entry *treeEntry) (fileOutcome, error)
}

// treeWalker drives a depth-first walk, folders before files, one entry at a
// time. Only fatal errors end the walk; everything else skips the entry.
type treeWalker struct {
	source   treeSource
	sink     treeSink
	ignore   *SyncIgnoreList
	progress *runProgress
	result   *RunResult
	logger   *slog.Logger
	label    func(entry *treeEntry, n, total int) string
}

func (w *treeWalker) walk(ctx context.Context, dir *treeDir) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := w.source.list(ctx, dir)
	if err != nil {
		if dir.RelPath == "" || isFatal(err) {
			return err
		}
		w.logger.Error("list failed, skipping folder", "path", dir.RelPath, "error", err)
		w.result.skip(dir.RelPath+"/", err)
		return nil
	}

	var dirs, files []*treeEntry
	for _, e := range entries {
		if w.ignore.ShouldIgnore(e.RelPath, e.IsDir) {
			continue
		}
		if e.IsDir {
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}

	for _, e := range dirs {
		child, err := w.sink.enterDir(ctx, dir, e)
		if err != nil {
			if isFatal(err) {
				return err
			}
			w.logger.Error("folder failed, skipping", "path", e.RelPath, "error", err)
			w.result.skip(e.RelPath+"/", err)
			w.progress.note(fmt.Sprintf("Skipped folder %s: %v", e.RelPath, err))
			continue
		}
		if err := w.walk(ctx, child); err != nil {
			return err
		}
	}

	for _, e := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome, err := w.sink.syncFile(ctx, dir, e)
		if err != nil {
			if isFatal(err) {
				return err
			}
			w.logger.Error("file failed, skipping", "path", e.RelPath, "error", err)
			outcome = outcomeSkipped
		} else {
			w.logger.Debug("file synced", "path", e.RelPath, "outcome", outcome)
		}
		w.result.record(e.RelPath, outcome, err)
		w.progress.step(w.label(e, w.progress.processed+1, w.progress.total))
	}
	return nil
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}
