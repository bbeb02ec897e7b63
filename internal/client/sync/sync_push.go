package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/utils"
)

type localEntry struct {
	path string
	info fs.FileInfo
}

func (se *SyncEngine) pushPlan(progress *runProgress) *runPlan {
	progress.lo, progress.hi = 20, 95
	return &runPlan{
		startMessage: "Checking for changes...",
		doneMessage:  "Sync completed successfully!",
		foundMessage: func(total int) string { return fmt.Sprintf("Found %d files to check", total) },
		label: func(e *treeEntry, n, total int) string {
			return fmt.Sprintf("Processing file %d of %d: %s", n, total, e.Name)
		},
		ensureRoot: se.ensurePushRoot,
		source:     &localSource{ignore: se.ignore},
		sink:       &pushSink{se: se, progress: progress},
	}
}

func (se *SyncEngine) ensurePushRoot(ctx context.Context, progress *runProgress) (*treeDir, error) {
	progress.note("Creating folder: " + se.remoteRoot)
	folder, err := se.mirror.GetOrCreate(ctx, se.remoteRoot, remote.RootID)
	if err != nil {
		return nil, fmt.Errorf("remote root: %w", err)
	}
	return &treeDir{LocalPath: se.localDir, RemoteID: folder.ID}, nil
}

// localSource lists the local tree.
type localSource struct {
	ignore *SyncIgnoreList
}

func (s *localSource) list(ctx context.Context, dir *treeDir) ([]*treeEntry, error) {
	dirEntries, err := os.ReadDir(dir.LocalPath)
	if err != nil {
		return nil, err
	}
	entries := make([]*treeEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			slog.Warn("stat failed", "path", filepath.Join(dir.LocalPath, de.Name()), "error", err)
			continue
		}
		// symlinks and other special files are not synced
		if !info.IsDir() && !info.Mode().IsRegular() {
			continue
		}
		entries = append(entries, &treeEntry{
			Name:    de.Name(),
			RelPath: joinRel(dir.RelPath, de.Name()),
			IsDir:   info.IsDir(),
			local:   &localEntry{path: filepath.Join(dir.LocalPath, de.Name()), info: info},
		})
	}
	return entries, nil
}

func (s *localSource) countFiles(ctx context.Context, dir *treeDir) (int, error) {
	count := 0
	err := filepath.WalkDir(dir.LocalPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir.LocalPath {
				return err
			}
			return nil
		}
		rel, err := utils.RelSlash(dir.LocalPath, path)
		if err != nil || rel == "" {
			return err
		}
		rel = joinRel(dir.RelPath, rel)
		if s.ignore.ShouldIgnore(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			count++
		}
		return nil
	})
	return count, err
}

// pushSink writes local changes to the remote store.
type pushSink struct {
	se       *SyncEngine
	progress *runProgress
}

func (p *pushSink) enterDir(ctx context.Context, parent *treeDir, e *treeEntry) (*treeDir, error) {
	folder, err := p.se.mirror.GetOrCreate(ctx, e.Name, parent.RemoteID)
	if err != nil {
		return nil, err
	}
	return &treeDir{RelPath: e.RelPath, LocalPath: e.local.path, RemoteID: folder.ID}, nil
}

func (p *pushSink) syncFile(ctx context.Context, dir *treeDir, e *treeEntry) (fileOutcome, error) {
	se := p.se
	content, err := os.ReadFile(e.local.path)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("read local file: %w", err)
	}

	rec, _ := se.metadata.Get(e.RelPath)
	class, digest := se.detector.ClassifyContent(content, rec)

	switch class {
	case Unchanged:
		return outcomeUnchanged, nil
	case NeverSynced:
		return p.uploadNew(ctx, dir, e, content, digest, 1)
	}

	version := rec.version() + 1
	if rec.remoteID() == "" {
		return p.uploadNew(ctx, dir, e, content, digest, version)
	}

	node, err := se.transfer.Stat(ctx, rec.remoteID())
	if errors.Is(err, remote.ErrNotFound) {
		slog.Info("remote copy vanished, uploading again", "path", e.RelPath, "id", rec.remoteID())
		return p.uploadNew(ctx, dir, e, content, digest, version)
	} else if err != nil {
		return outcomeSkipped, err
	}

	verdict, err := se.resolver.Resolve(ctx, &ConflictInput{
		Record:        rec,
		Remote:        node,
		LocalHash:     digest,
		LocalModified: e.local.info.ModTime(),
	})
	if err != nil {
		return outcomeSkipped, err
	}
	slog.Debug("conflict check", "path", e.RelPath, "state", verdict.State, "resolution", verdict.Resolution, "reason", verdict.Reason)

	switch verdict.Resolution {
	case OverwriteRemote:
		updated, err := se.transfer.Update(ctx, node.ID, content)
		if err != nil {
			return outcomeSkipped, err
		}
		return outcomeUpdated, se.commit(e.RelPath, newSyncRecord(node.ID, digest, se.syncTime(updated), version))

	case RefreshMetadata:
		return outcomeRefreshed, se.commit(e.RelPath, newSyncRecord(node.ID, digest, se.syncTime(node), version))

	case OverwriteLocal:
		if err := utils.AtomicWrite(e.local.path, bytes.NewReader(verdict.RemoteContent), 0o644); err != nil {
			return outcomeSkipped, fmt.Errorf("write newer remote copy: %w", err)
		}
		return outcomeDownloaded, se.commit(e.RelPath, newSyncRecord(node.ID, verdict.RemoteHash, se.syncTime(node), version))

	default:
		p.progress.note("Creating conflict copy for: " + e.Name)
		copyNode, err := se.transfer.CreateConflictCopy(ctx, e.Name, dir.RemoteID, content, version)
		if err != nil {
			return outcomeSkipped, err
		}
		slog.Warn("conflict copy created", "path", e.RelPath, "copy", copyNode.Name, "reason", verdict.Reason)
		return outcomeConflictCopy, se.commit(e.RelPath, newSyncRecord(node.ID, digest, se.syncTime(node), version))
	}
}

func (p *pushSink) uploadNew(ctx context.Context, dir *treeDir, e *treeEntry, content []byte, digest string, version int64) (fileOutcome, error) {
	node, err := p.se.transfer.Upload(ctx, e.Name, dir.RemoteID, content, version)
	if err != nil {
		return outcomeSkipped, err
	}
	return outcomeUploaded, p.se.commit(e.RelPath, newSyncRecord(node.ID, digest, p.se.syncTime(node), version))
}

// commit records a transferred file and saves the side-file right away.
func (se *SyncEngine) commit(relPath string, rec *SyncRecord) error {
	if err := se.metadata.Commit(relPath, rec); err != nil {
		return fmt.Errorf("record sync state: %w", err)
	}
	return nil
}
