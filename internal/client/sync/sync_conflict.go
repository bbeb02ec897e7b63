package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openmined/syncmirror/internal/remote"
)

type ConflictState string

const (
	NoConflict   ConflictState = "no-conflict"
	RemoteNewer  ConflictState = "remote-newer"
	TrueConflict ConflictState = "true-conflict"
)

// Resolution is the action push takes for a modified file.
type Resolution string

const (
	OverwriteRemote Resolution = "overwrite-remote"
	OverwriteLocal  Resolution = "overwrite-local"
	RefreshMetadata Resolution = "refresh-metadata"
	KeepBoth        Resolution = "conflict-copy"
)

// ConflictInput is a locally modified file whose remote counterpart exists.
type ConflictInput struct {
	Record        *SyncRecord
	Remote        *remote.Node
	LocalHash     string
	LocalModified time.Time
}

// Verdict is the outcome of ConflictResolver.Resolve. RemoteContent and
// RemoteHash are set when the remote copy was downloaded for comparison.
type Verdict struct {
	State         ConflictState
	Resolution    Resolution
	RemoteContent []byte
	RemoteHash    string
	Reason        string
}

// ConflictResolver decides what push does with a modified file that also
// exists remotely.
type ConflictResolver struct {
	transfer *TransferExecutor
	hasher   ContentHasher
}

func NewConflictResolver(transfer *TransferExecutor, hasher ContentHasher) *ConflictResolver {
	return &ConflictResolver{transfer: transfer, hasher: hasher}
}

// Resolve returns an error only for failures that must stop the run
// (auth, cancellation). Anything else that prevents a safe decision ends in
// a conflict copy.
func (r *ConflictResolver) Resolve(ctx context.Context, in *ConflictInput) (*Verdict, error) {
	if !remoteChangedSince(in.Remote, in.Record) {
		return &Verdict{State: NoConflict, Resolution: OverwriteRemote, Reason: "remote unchanged since last sync"}, nil
	}

	content, err := r.transfer.Download(ctx, in.Remote.ID)
	if err != nil {
		if isFatal(err) {
			return nil, err
		}
		slog.Warn("conflict compare failed, keeping both", "id", in.Remote.ID, "error", err)
		return &Verdict{State: RemoteNewer, Resolution: KeepBoth, Reason: "remote copy could not be compared: " + err.Error()}, nil
	}

	remoteHash := r.hasher.Hash(content)
	if remoteHash == in.LocalHash {
		return &Verdict{
			State:         NoConflict,
			Resolution:    RefreshMetadata,
			RemoteContent: content,
			RemoteHash:    remoteHash,
			Reason:        "contents converged",
		}, nil
	}

	v := &Verdict{State: TrueConflict, RemoteContent: content, RemoteHash: remoteHash}
	localMs := in.LocalModified.UnixMilli()
	remoteMs := in.Remote.ModifiedTime.UnixMilli()
	switch {
	case localMs > remoteMs:
		v.Resolution, v.Reason = OverwriteRemote, "local copy is newer"
	case remoteMs > localMs:
		v.Resolution, v.Reason = OverwriteLocal, "remote copy is newer"
	default:
		v.Resolution, v.Reason = KeepBoth, "both copies changed at the same time"
	}
	return v, nil
}

// remoteChangedSince reports whether the remote file moved past the last
// agreed sync time.
func remoteChangedSince(node *remote.Node, rec *SyncRecord) bool {
	return node.ModifiedTime.UnixMilli() > rec.LastSyncTime
}

// isFatal reports errors that abort the whole run.
func isFatal(err error) bool {
	return errors.Is(err, remote.ErrUnauthorized) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
