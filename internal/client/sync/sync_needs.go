package sync

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/openmined/syncmirror/internal/utils"
)

const staleSyncAge = time.Hour

// NeedsSyncResult tells whether a push is due without contacting the remote.
type NeedsSyncResult struct {
	NeedsSync    bool     `json:"needsSync"`
	Reason       string   `json:"reason"`
	ChangedFiles []string `json:"changedFiles,omitempty"`
	LastSync     int64    `json:"lastSync"`
}

// CheckNeedsSync compares the local tree with the side-file. It is safe to
// call while a run is in progress; it reads its own copy of the metadata.
func (se *SyncEngine) CheckNeedsSync() (*NeedsSyncResult, error) {
	if !utils.DirExists(se.localDir) {
		return &NeedsSyncResult{Reason: "no local folder exists"}, nil
	}

	meta := NewMetadataStore(se.metadata.Path()).Load()
	ignore := NewSyncIgnoreList(se.ignore.ignoreFile, se.ignore.extra...)
	ignore.Load()

	var changed []string
	err := filepath.WalkDir(se.localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == se.localDir {
				return err
			}
			return nil
		}
		rel, err := utils.RelSlash(se.localDir, path)
		if err != nil || rel == "" {
			return err
		}
		if ignore.ShouldIgnore(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rec := meta.Files[rel]
		if rec == nil || rec.LastSyncHash == nil {
			changed = append(changed, rel)
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			changed = append(changed, rel)
			return nil
		}
		if se.hasher.Hash(data) != *rec.LastSyncHash {
			changed = append(changed, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &NeedsSyncResult{LastSync: meta.LastSync, ChangedFiles: changed}
	switch {
	case len(changed) > 0:
		res.NeedsSync = true
		res.Reason = "files changed since last sync"
	case se.now().UnixMilli()-meta.LastSync > staleSyncAge.Milliseconds():
		res.NeedsSync = true
		res.Reason = "last sync more than 1 hour ago"
	default:
		res.Reason = "everything is in sync"
	}
	return res, nil
}
