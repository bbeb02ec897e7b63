// Package remote defines the object-store surface the sync engine talks to.
//
// A store is a tree of folders and files addressed by opaque ids. Names are
// not unique within a folder; lookups by name are the caller's business.
package remote

import (
	"context"
	"errors"
	"io"
	"time"
)

// RootID addresses the top of the store.
const RootID = ""

var (
	ErrNotFound      = errors.New("remote: not found")
	ErrUnauthorized  = errors.New("remote: unauthorized")
	ErrAlreadyExists = errors.New("remote: already exists")
)

// Property keys attached to uploaded files.
const (
	PropMachineID    = "machineId"
	PropVersion      = "version"
	PropIsConflict   = "isConflict"
	PropOriginalName = "originalName"
)

type NodeKind string

const (
	KindFolder NodeKind = "folder"
	KindFile   NodeKind = "file"
)

// Node is a point-in-time view of a remote folder or file.
type Node struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Kind         NodeKind          `json:"kind"`
	ModifiedTime time.Time         `json:"modifiedTime"`
	Size         int64             `json:"size"`
	Properties   map[string]string `json:"properties,omitempty"`
}

func (n *Node) IsFolder() bool {
	return n.Kind == KindFolder
}

// CreateFileParams describes a new file upload.
type CreateFileParams struct {
	Name       string
	ParentID   string
	Content    io.Reader
	Size       int64
	Properties map[string]string
}

// Store is implemented by every remote backend.
type Store interface {
	// ListChildren returns the immediate children of a folder.
	ListChildren(ctx context.Context, parentID string) ([]*Node, error)
	CreateFolder(ctx context.Context, name, parentID string) (*Node, error)
	CreateFile(ctx context.Context, params *CreateFileParams) (*Node, error)
	// UpdateFile replaces the content of an existing file.
	UpdateFile(ctx context.Context, id string, content io.Reader, size int64) (*Node, error)
	GetFileMetadata(ctx context.Context, id string) (*Node, error)
	DownloadFile(ctx context.Context, id string) (io.ReadCloser, error)
}

// CredentialSupplier keeps the credentials of a store usable. EnsureValid is
// called once at the start of a run and may refresh a token that is about to
// expire. It returns an error wrapping ErrUnauthorized when the user has to
// sign in again.
type CredentialSupplier interface {
	EnsureValid(ctx context.Context) error
}

// IsRetryable reports whether err is worth another attempt. Auth failures,
// missing objects and cancellation are final.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
