package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/syncmirror/internal/remote"
	"github.com/sethvargo/go-retry"
)

var errRootNotFound = errors.New("remote root not found")

// RemoteMirror resolves the local directory structure onto remote folders.
// Listings are never cached beyond the call that made them.
type RemoteMirror struct {
	store       remote.Store
	folderRetry RetryPolicy
	rootLookup  RootLookupPolicy
}

func NewRemoteMirror(store remote.Store, folderRetry RetryPolicy, rootLookup RootLookupPolicy) *RemoteMirror {
	return &RemoteMirror{store: store, folderRetry: folderRetry, rootLookup: rootLookup}
}

// List returns the immediate children of parentID.
func (m *RemoteMirror) List(ctx context.Context, parentID string) ([]*remote.Node, error) {
	var nodes []*remote.Node
	err := m.folderRetry.Do(ctx, "list "+parentID, func(ctx context.Context) error {
		var err error
		nodes, err = m.store.ListChildren(ctx, parentID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list folder %q: %w", parentID, err)
	}
	return nodes, nil
}

// Find returns the first folder called name under parentID, or nil.
func (m *RemoteMirror) Find(ctx context.Context, name, parentID string) (*remote.Node, error) {
	nodes, err := m.List(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return findFolder(nodes, name), nil
}

// GetOrCreate returns the folder called name under parentID, creating it
// when missing.
func (m *RemoteMirror) GetOrCreate(ctx context.Context, name, parentID string) (*remote.Node, error) {
	folder, err := m.Find(ctx, name, parentID)
	if err != nil {
		return nil, err
	}
	if folder != nil {
		return folder, nil
	}

	err = m.folderRetry.Do(ctx, "create folder "+name, func(ctx context.Context) error {
		var err error
		folder, err = m.store.CreateFolder(ctx, name, parentID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create folder %q: %w", name, err)
	}
	slog.Info("remote folder created", "name", name, "id", folder.ID)
	return folder, nil
}

// LookupRoot finds a top level folder without creating it. A missing folder
// is looked up again after NotFoundDelay, since a first push from another
// machine may still be in flight.
func (m *RemoteMirror) LookupRoot(ctx context.Context, name string) (*remote.Node, error) {
	p := m.rootLookup
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	attempt := 0
	notFound := false
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		if attempt >= p.Attempts {
			return 0, true
		}
		if notFound {
			return p.NotFoundDelay, false
		}
		return p.ErrorDelay, false
	})

	var folder *remote.Node
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		nodes, err := m.store.ListChildren(ctx, remote.RootID)
		if err != nil {
			notFound = false
			if !remote.IsRetryable(err) {
				return err
			}
			slog.Warn("root lookup failed", "name", name, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		folder = findFolder(nodes, name)
		if folder == nil {
			notFound = true
			slog.Debug("root folder not found yet", "name", name, "attempt", attempt)
			return retry.RetryableError(errRootNotFound)
		}
		return nil
	})
	if errors.Is(err, errRootNotFound) {
		return nil, fmt.Errorf("folder %q not found on remote", name)
	} else if err != nil {
		return nil, fmt.Errorf("look up folder %q: %w", name, err)
	}
	return folder, nil
}

// CountFiles walks the remote tree below parentID and counts files accepted
// by keep. Only a failure to list parentID itself is returned; subfolders that
// cannot be listed are left out of the count.
func (m *RemoteMirror) CountFiles(ctx context.Context, parentID, relDir string, keep func(relPath string, isDir bool) bool) (int, error) {
	nodes, err := m.List(ctx, parentID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range nodes {
		rel := joinRel(relDir, n.Name)
		if !keep(rel, n.IsFolder()) {
			continue
		}
		if !n.IsFolder() {
			count++
			continue
		}
		sub, err := m.CountFiles(ctx, n.ID, rel, keep)
		if err != nil {
			if isFatal(err) {
				return count, err
			}
			// the walk skips this folder too
			slog.Warn("count skipped folder", "path", rel, "error", err)
		}
		count += sub
	}
	return count, nil
}

func findFolder(nodes []*remote.Node, name string) *remote.Node {
	for _, n := range nodes {
		if n.IsFolder() && n.Name == name {
			return n
		}
	}
	return nil
}
