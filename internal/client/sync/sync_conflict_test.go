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

func TestConflictResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	synced := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	setup := func(t *testing.T, remoteContent string, remoteModified time.Time) (*memstore.Store, *ConflictResolver, *ConflictInput) {
		store := memstore.New()
		node := store.PutFile(remote.RootID, "a.txt", []byte(remoteContent), remoteModified)
		resolver := NewConflictResolver(NewTransferExecutor(store, noRetry, testMachineID), fakeHasher{})
		in := &ConflictInput{
			Record:    &SyncRecord{RemoteID: strPtr(node.ID), LastSyncHash: strPtr("h:base"), LastSyncTime: synced.UnixMilli(), Version: 1},
			Remote:    node,
			LocalHash: "h:local",
		}
		return store, resolver, in
	}

	t.Run("remote untouched", func(t *testing.T) {
		store, r, in := setup(t, "base", synced)
		in.LocalModified = synced.Add(time.Minute)

		v, err := r.Resolve(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, NoConflict, v.State)
		assert.Equal(t, OverwriteRemote, v.Resolution)
		assert.Zero(t, store.Calls(memstore.OpDownload))
	})

	t.Run("remote newer with same content", func(t *testing.T) {
		_, r, in := setup(t, "local", synced.Add(time.Minute))

		v, err := r.Resolve(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, NoConflict, v.State)
		assert.Equal(t, RefreshMetadata, v.Resolution)
		assert.Equal(t, "h:local", v.RemoteHash)
	})

	t.Run("local wins by timestamp", func(t *testing.T) {
		_, r, in := setup(t, "remote", synced.Add(time.Minute))
		in.LocalModified = synced.Add(2 * time.Minute)

		v, err := r.Resolve(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, TrueConflict, v.State)
		assert.Equal(t, OverwriteRemote, v.Resolution)
	})

	t.Run("remote wins by timestamp", func(t *testing.T) {
		_, r, in := setup(t, "remote", synced.Add(2*time.Minute))
		in.LocalModified = synced.Add(time.Minute)

		v, err := r.Resolve(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, TrueConflict, v.State)
		assert.Equal(t, OverwriteLocal, v.Resolution)
		assert.Equal(t, []byte("remote"), v.RemoteContent)
		assert.Equal(t, "h:remote", v.RemoteHash)
	})

	t.Run("tie keeps both", func(t *testing.T) {
		_, r, in := setup(t, "remote", synced.Add(time.Minute))
		in.LocalModified = synced.Add(time.Minute)

		v, err := r.Resolve(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, TrueConflict, v.State)
		assert.Equal(t, KeepBoth, v.Resolution)
	})

	t.Run("download failure keeps both", func(t *testing.T) {
		store, r, in := setup(t, "remote", synced.Add(time.Minute))
		store.FailNext(memstore.OpDownload, noRetry.Attempts(), errors.New("reset"))

		v, err := r.Resolve(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, KeepBoth, v.Resolution)
		assert.Equal(t, noRetry.Attempts(), store.Calls(memstore.OpDownload))
	})

	t.Run("auth failure aborts", func(t *testing.T) {
		store, r, in := setup(t, "remote", synced.Add(time.Minute))
		store.FailNext(memstore.OpDownload, 1, remote.ErrUnauthorized)

		_, err := r.Resolve(ctx, in)
		assert.ErrorIs(t, err, remote.ErrUnauthorized)
		assert.Equal(t, 1, store.Calls(memstore.OpDownload))
	})
}

func TestConflictCopyName(t *testing.T) {
	assert.Equal(t, "a.txt.conflict-ab12cd34-v2", ConflictCopyName("a.txt", "ab12cd34", 2))
}
