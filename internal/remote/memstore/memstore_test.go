package memstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/openmined/syncmirror/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_FolderAndFileLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	folder, err := s.CreateFolder(ctx, ".db", remote.RootID)
	require.NoError(t, err)
	assert.True(t, folder.IsFolder())

	file, err := s.CreateFile(ctx, &remote.CreateFileParams{
		Name:       "a.txt",
		ParentID:   folder.ID,
		Content:    bytes.NewReader([]byte("v1")),
		Size:       2,
		Properties: map[string]string{remote.PropVersion: "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), file.Size)
	assert.Equal(t, "1", file.Properties[remote.PropVersion])

	children, err := s.ListChildren(ctx, folder.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "a.txt", children[0].Name)

	_, err = s.UpdateFile(ctx, file.ID, bytes.NewReader([]byte("v2!")), 3)
	require.NoError(t, err)

	rc, err := s.DownloadFile(ctx, file.ID)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "v2!", string(data))

	found, ok := s.Lookup(".db/a.txt")
	require.True(t, ok)
	assert.Equal(t, file.ID, found.ID)
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetFileMetadata(ctx, "nope")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	_, err = s.ListChildren(ctx, "nope")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	f := s.PutFile(remote.RootID, "x", []byte("x"), time.Now())
	s.Delete(f.ID)
	_, err = s.DownloadFile(ctx, f.ID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestStore_FailNextAndCalls(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	s.FailNext(OpList, 2, boom)
	_, err := s.ListChildren(ctx, remote.RootID)
	assert.ErrorIs(t, err, boom)
	_, err = s.ListChildren(ctx, remote.RootID)
	assert.ErrorIs(t, err, boom)
	_, err = s.ListChildren(ctx, remote.RootID)
	assert.NoError(t, err)

	assert.Equal(t, 3, s.Calls(OpList))
	assert.Equal(t, 3, s.TotalCalls())
	s.ResetCalls()
	assert.Zero(t, s.TotalCalls())
}
