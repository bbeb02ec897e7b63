package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/utils"
)

// TransferExecutor moves file content between the local tree and the remote
// store. Every call is retried with the transfer policy.
type TransferExecutor struct {
	store     remote.Store
	retry     RetryPolicy
	machineID string
}

func NewTransferExecutor(store remote.Store, retry RetryPolicy, machineID string) *TransferExecutor {
	return &TransferExecutor{store: store, retry: retry, machineID: machineID}
}

// Upload creates a new remote file carrying the machine id and version.
func (t *TransferExecutor) Upload(ctx context.Context, name, parentID string, content []byte, version int64) (*remote.Node, error) {
	props := map[string]string{
		remote.PropMachineID: t.machineID,
		remote.PropVersion:   strconv.FormatInt(version, 10),
	}
	return t.create(ctx, name, parentID, content, props)
}

// Update replaces the content of an existing remote file.
func (t *TransferExecutor) Update(ctx context.Context, id string, content []byte) (*remote.Node, error) {
	var node *remote.Node
	err := t.retry.Do(ctx, "update "+id, func(ctx context.Context) error {
		var err error
		node, err = t.store.UpdateFile(ctx, id, bytes.NewReader(content), int64(len(content)))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", id, err)
	}
	slog.Debug("updated", "id", id, "size", humanize.Bytes(uint64(len(content))))
	return node, nil
}

// Stat fetches the current metadata of a remote file.
func (t *TransferExecutor) Stat(ctx context.Context, id string) (*remote.Node, error) {
	var node *remote.Node
	err := t.retry.Do(ctx, "stat "+id, func(ctx context.Context) error {
		var err error
		node, err = t.store.GetFileMetadata(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", id, err)
	}
	return node, nil
}

// Download reads the whole remote file into memory.
func (t *TransferExecutor) Download(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := t.retry.Do(ctx, "download "+id, func(ctx context.Context) error {
		rc, err := t.store.DownloadFile(ctx, id)
		if err != nil {
			return err
		}
		defer rc.Close()
		data, err = io.ReadAll(rc)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", id, err)
	}
	return data, nil
}

// DownloadTo downloads a remote file and atomically replaces localPath.
func (t *TransferExecutor) DownloadTo(ctx context.Context, id, localPath string) error {
	data, err := t.Download(ctx, id)
	if err != nil {
		return err
	}
	if err := utils.AtomicWrite(localPath, bytes.NewReader(data), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", localPath, err)
	}
	slog.Debug("downloaded", "id", id, "path", localPath, "size", humanize.Bytes(uint64(len(data))))
	return nil
}

// CreateConflictCopy uploads content next to the original under
// `<name>.conflict-<machineId>-v<version>`. The original is left alone.
func (t *TransferExecutor) CreateConflictCopy(ctx context.Context, name, parentID string, content []byte, version int64) (*remote.Node, error) {
	props := map[string]string{
		remote.PropIsConflict:   "true",
		remote.PropMachineID:    t.machineID,
		remote.PropOriginalName: name,
		remote.PropVersion:      strconv.FormatInt(version, 10),
	}
	return t.create(ctx, ConflictCopyName(name, t.machineID, version), parentID, content, props)
}

func (t *TransferExecutor) create(ctx context.Context, name, parentID string, content []byte, props map[string]string) (*remote.Node, error) {
	var node *remote.Node
	err := t.retry.Do(ctx, "upload "+name, func(ctx context.Context) error {
		var err error
		node, err = t.store.CreateFile(ctx, &remote.CreateFileParams{
			Name:       name,
			ParentID:   parentID,
			Content:    bytes.NewReader(content),
			Size:       int64(len(content)),
			Properties: props,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	slog.Debug("uploaded", "name", name, "id", node.ID, "size", humanize.Bytes(uint64(len(content))))
	return node, nil
}

func ConflictCopyName(name, machineID string, version int64) string {
	return fmt.Sprintf("%s.conflict-%s-v%d", name, machineID, version)
}
