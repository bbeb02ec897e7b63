package sync

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/utils"
)

type remoteEntry struct {
	node *remote.Node
}

func (se *SyncEngine) pullPlan(progress *runProgress) *runPlan {
	progress.lo, progress.hi = 25, 95
	return &runPlan{
		startMessage: fmt.Sprintf("Looking for folder %q...", se.remoteRoot),
		doneMessage:  "Download completed successfully!",
		foundMessage: func(total int) string { return fmt.Sprintf("Found %d files. Starting download...", total) },
		label: func(e *treeEntry, n, total int) string {
			return fmt.Sprintf("Checked file %d of %d: %s", n, total, e.Name)
		},
		ensureRoot: se.ensurePullRoot,
		source:     &remoteSource{mirror: se.mirror, ignore: se.ignore},
		sink:       &pullSink{se: se, progress: progress},
	}
}

func (se *SyncEngine) ensurePullRoot(ctx context.Context, progress *runProgress) (*treeDir, error) {
	folder, err := se.mirror.LookupRoot(ctx, se.remoteRoot)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(se.localDir); err != nil {
		return nil, fmt.Errorf("create local folder: %w", err)
	}
	progress.note("Scanning folder structure...")
	return &treeDir{LocalPath: se.localDir, RemoteID: folder.ID}, nil
}

// remoteSource lists the remote tree.
type remoteSource struct {
	mirror *RemoteMirror
	ignore *SyncIgnoreList
}

func (s *remoteSource) list(ctx context.Context, dir *treeDir) ([]*treeEntry, error) {
	nodes, err := s.mirror.List(ctx, dir.RemoteID)
	if err != nil {
		return nil, err
	}
	entries := make([]*treeEntry, 0, len(nodes))
	for _, n := range nodes {
		if remote.ValidateName(n.Name) != nil {
			continue
		}
		entries = append(entries, &treeEntry{
			Name:    n.Name,
			RelPath: joinRel(dir.RelPath, n.Name),
			IsDir:   n.IsFolder(),
			remote:  &remoteEntry{node: n},
		})
	}
	return entries, nil
}

func (s *remoteSource) countFiles(ctx context.Context, dir *treeDir) (int, error) {
	return s.mirror.CountFiles(ctx, dir.RemoteID, dir.RelPath, func(relPath string, isDir bool) bool {
		return !s.ignore.ShouldIgnore(relPath, isDir)
	})
}

// pullSink writes remote changes to the local tree.
type pullSink struct {
	se       *SyncEngine
	progress *runProgress
}

func (p *pullSink) enterDir(ctx context.Context, parent *treeDir, e *treeEntry) (*treeDir, error) {
	localPath := filepath.Join(parent.LocalPath, e.Name)
	if err := utils.EnsureDir(localPath); err != nil {
		return nil, fmt.Errorf("create local folder: %w", err)
	}
	return &treeDir{RelPath: e.RelPath, LocalPath: localPath, RemoteID: e.remote.node.ID}, nil
}

func (p *pullSink) syncFile(ctx context.Context, dir *treeDir, e *treeEntry) (fileOutcome, error) {
	se := p.se
	node := e.remote.node
	localPath := filepath.Join(dir.LocalPath, e.Name)
	rec, _ := se.metadata.Get(e.RelPath)
	remoteModified := node.ModifiedTime.UnixMilli()

	if !needsDownload(localPath, rec, node) {
		return outcomeUnchanged, nil
	}

	p.progress.note("Downloading: " + e.Name)
	if err := se.transfer.DownloadTo(ctx, node.ID, localPath); err != nil {
		return outcomeSkipped, err
	}

	digest, err := se.hasher.HashFile(localPath)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("hash downloaded file: %w", err)
	}
	return outcomeDownloaded, se.commit(e.RelPath, newSyncRecord(node.ID, digest, remoteModified, rec.version()+1))
}

// needsDownload is true when the local copy is missing, belongs to another
// remote file, or is older than the remote one.
func needsDownload(localPath string, rec *SyncRecord, node *remote.Node) bool {
	if !utils.FileExists(localPath) {
		return true
	}
	if rec.remoteID() != node.ID {
		return true
	}
	return node.ModifiedTime.UnixMilli() > rec.LastSyncTime
}
