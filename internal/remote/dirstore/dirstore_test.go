package dirstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/openmined/syncmirror/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func readAll(t *testing.T, s *Store, id string) string {
	t.Helper()
	rc, err := s.DownloadFile(context.Background(), id)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestStore_Tree(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	root, err := s.CreateFolder(ctx, ".db", remote.RootID)
	require.NoError(t, err)
	assert.True(t, root.IsFolder())

	sub, err := s.CreateFolder(ctx, "sub", root.ID)
	require.NoError(t, err)

	file, err := s.CreateFile(ctx, &remote.CreateFileParams{
		Name:       "a.txt",
		ParentID:   root.ID,
		Content:    strings.NewReader("hello"),
		Size:       5,
		Properties: map[string]string{remote.PropMachineID: "m1", remote.PropVersion: "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), file.Size)

	children, err := s.ListChildren(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, sub.ID, children[0].ID)
	assert.Equal(t, "a.txt", children[1].Name)
	assert.Equal(t, "m1", children[1].Properties[remote.PropMachineID])

	top, err := s.ListChildren(ctx, remote.RootID)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, ".db", top[0].Name)

	assert.Equal(t, "hello", readAll(t, s, file.ID))
}

func TestStore_UpdateFile(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	clock := time.UnixMilli(1_000_000)
	s.SetClock(func() time.Time { return clock })

	file, err := s.CreateFile(ctx, &remote.CreateFileParams{Name: "a.txt", Content: strings.NewReader("v1")})
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	updated, err := s.UpdateFile(ctx, file.ID, strings.NewReader("version two"), 11)
	require.NoError(t, err)
	assert.Equal(t, file.ID, updated.ID)
	assert.Equal(t, int64(11), updated.Size)
	assert.Equal(t, clock.UnixMilli(), updated.ModifiedTime.UnixMilli())

	meta, err := s.GetFileMetadata(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.UnixMilli(), meta.ModifiedTime.UnixMilli())
	assert.Equal(t, "version two", readAll(t, s, file.ID))
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	folder, err := s.CreateFolder(ctx, "dir", remote.RootID)
	require.NoError(t, err)

	_, err = s.GetFileMetadata(ctx, "missing")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	_, err = s.GetFileMetadata(ctx, folder.ID)
	assert.ErrorIs(t, err, remote.ErrNotFound)

	_, err = s.DownloadFile(ctx, "missing")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	_, err = s.ListChildren(ctx, "missing")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	_, err = s.CreateFolder(ctx, "x", "missing")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	_, err = s.UpdateFile(ctx, "missing", strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestStore_InvalidName(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CreateFolder(context.Background(), "a/b", remote.RootID)
	assert.Error(t, err)
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	folder, err := s.CreateFolder(ctx, ".db", remote.RootID)
	require.NoError(t, err)
	file, err := s.CreateFile(ctx, &remote.CreateFileParams{Name: "a", ParentID: folder.ID, Content: strings.NewReader("kept")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	children, err := s.ListChildren(ctx, folder.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, file.ID, children[0].ID)
	assert.Equal(t, "kept", readAll(t, s, file.ID))
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	folder, err := s.CreateFolder(ctx, "dir", remote.RootID)
	require.NoError(t, err)
	file, err := s.CreateFile(ctx, &remote.CreateFileParams{Name: "a", ParentID: folder.ID, Content: strings.NewReader("x")})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, folder.ID))

	_, err = s.GetFileMetadata(ctx, file.ID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	top, err := s.ListChildren(ctx, remote.RootID)
	require.NoError(t, err)
	assert.Empty(t, top)
}
