package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/remote/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMirror(store remote.Store) *RemoteMirror {
	return NewRemoteMirror(store, noRetry, RootLookupPolicy{Attempts: 3})
}

func TestRemoteMirror_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	m := newTestMirror(store)

	first, err := m.GetOrCreate(ctx, ".db", remote.RootID)
	require.NoError(t, err)
	second, err := m.GetOrCreate(ctx, ".db", remote.RootID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.Calls(memstore.OpCreateFolder))
	assert.Equal(t, []string{".db"}, store.Children(remote.RootID))
}

func TestRemoteMirror_FindIgnoresFiles(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.PutFile(remote.RootID, ".db", []byte("not a folder"), time.Now())
	m := newTestMirror(store)

	found, err := m.Find(ctx, ".db", remote.RootID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRemoteMirror_ListRetries(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.FailNext(memstore.OpList, 2, errors.New("flaky"))
	m := newTestMirror(store)

	_, err := m.List(ctx, remote.RootID)
	require.NoError(t, err)
	assert.Equal(t, 3, store.Calls(memstore.OpList))
}

func TestRemoteMirror_LookupRoot(t *testing.T) {
	ctx := context.Background()

	t.Run("found after an error", func(t *testing.T) {
		store := memstore.New()
		root := store.PutFolder(remote.RootID, ".db")
		store.FailNext(memstore.OpList, 1, errors.New("flaky"))

		found, err := newTestMirror(store).LookupRoot(ctx, ".db")
		require.NoError(t, err)
		assert.Equal(t, root.ID, found.ID)
		assert.Equal(t, 2, store.Calls(memstore.OpList))
	})

	t.Run("never created", func(t *testing.T) {
		store := memstore.New()
		_, err := newTestMirror(store).LookupRoot(ctx, ".db")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found on remote")
		assert.Equal(t, 3, store.Calls(memstore.OpList))
		assert.Zero(t, store.Calls(memstore.OpCreateFolder))
	})

	t.Run("unauthorized stops at once", func(t *testing.T) {
		store := memstore.New()
		store.FailNext(memstore.OpList, 1, remote.ErrUnauthorized)
		_, err := newTestMirror(store).LookupRoot(ctx, ".db")
		assert.ErrorIs(t, err, remote.ErrUnauthorized)
		assert.Equal(t, 1, store.Calls(memstore.OpList))
	})
}

func TestRemoteMirror_CountFiles(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	root := store.PutFolder(remote.RootID, ".db")
	sub := store.PutFolder(root.ID, "sub")
	skip := store.PutFolder(root.ID, "skip")
	store.PutFile(root.ID, "a", nil, root.ModifiedTime)
	store.PutFile(sub.ID, "b", nil, root.ModifiedTime)
	store.PutFile(sub.ID, "c", nil, root.ModifiedTime)
	store.PutFile(skip.ID, "d", nil, root.ModifiedTime)

	count, err := newTestMirror(store).CountFiles(ctx, root.ID, "", func(rel string, isDir bool) bool {
		return rel != "skip"
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRemoteMirror_CountFilesSkipsUnlistableFolder(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	root := store.PutFolder(remote.RootID, ".db")
	bad := store.PutFolder(root.ID, "bad")
	store.PutFile(root.ID, "a", nil, root.ModifiedTime)
	store.PutFile(bad.ID, "b", nil, root.ModifiedTime)
	keepAll := func(string, bool) bool { return true }

	broken := &brokenFolderStore{Store: store, folderID: bad.ID, err: errors.New("connection reset")}
	count, err := newTestMirror(broken).CountFiles(ctx, root.ID, "", keepAll)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// the folder being counted must itself be listable
	broken.folderID = root.ID
	_, err = newTestMirror(broken).CountFiles(ctx, root.ID, "", keepAll)
	require.Error(t, err)

	// auth failures below the root still end the count
	broken.folderID = bad.ID
	broken.err = remote.ErrUnauthorized
	_, err = newTestMirror(broken).CountFiles(ctx, root.ID, "", keepAll)
	assert.ErrorIs(t, err, remote.ErrUnauthorized)
}
