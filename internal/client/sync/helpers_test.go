package sync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/remote/memstore"
	"github.com/stretchr/testify/require"
)

const testMachineID = "testmach"

var noRetry = RetryPolicy{Name: "test", Delays: []time.Duration{0, 0}}

type testEnv struct {
	t        *testing.T
	localDir string
	store    *memstore.Store
	engine   *SyncEngine
	events   []ProgressEvent
}

func newTestEnv(t *testing.T, mutate ...func(cfg *EngineConfig)) *testEnv {
	t.Helper()
	env := &testEnv{
		t:        t,
		localDir: filepath.Join(t.TempDir(), ".db"),
		store:    memstore.New(),
	}
	require.NoError(t, os.MkdirAll(env.localDir, 0o755))
	env.engine = env.newEngine(mutate...)
	return env
}

// newEngine builds another engine over the same folder and store.
func (env *testEnv) newEngine(mutate ...func(cfg *EngineConfig)) *SyncEngine {
	env.t.Helper()
	cfg := &EngineConfig{
		LocalDir:      env.localDir,
		MachineID:     testMachineID,
		Store:         env.store,
		FolderRetry:   &noRetry,
		TransferRetry: &noRetry,
		RootLookup:    &RootLookupPolicy{Attempts: 3},
		Progress: ProgressFunc(func(ev ProgressEvent) {
			env.events = append(env.events, ev)
		}),
	}
	for _, fn := range mutate {
		fn(cfg)
	}
	engine, err := NewSyncEngine(cfg)
	require.NoError(env.t, err)
	return engine
}

func (env *testEnv) write(rel, content string) string {
	env.t.Helper()
	path := filepath.Join(env.localDir, filepath.FromSlash(rel))
	require.NoError(env.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(env.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (env *testEnv) read(rel string) string {
	env.t.Helper()
	data, err := os.ReadFile(filepath.Join(env.localDir, filepath.FromSlash(rel)))
	require.NoError(env.t, err)
	return string(data)
}

func (env *testEnv) touch(rel string, mtime time.Time) {
	env.t.Helper()
	path := filepath.Join(env.localDir, filepath.FromSlash(rel))
	require.NoError(env.t, os.Chtimes(path, mtime, mtime))
}

func (env *testEnv) record(rel string) *SyncRecord {
	env.t.Helper()
	meta := NewMetadataStore(env.engine.Metadata().Path()).Load()
	rec, ok := meta.Files[rel]
	require.True(env.t, ok, "no record for %s", rel)
	return rec
}

func (env *testEnv) remoteContent(path string) string {
	env.t.Helper()
	node, ok := env.store.Lookup(path)
	require.True(env.t, ok, "remote %s missing", path)
	data, ok := env.store.Content(node.ID)
	require.True(env.t, ok)
	return string(data)
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func strPtr(s string) *string {
	return &s
}

// brokenFolderStore fails every listing of one folder.
type brokenFolderStore struct {
	*memstore.Store
	folderID string
	err      error
}

func (s *brokenFolderStore) ListChildren(ctx context.Context, parentID string) ([]*remote.Node, error) {
	if parentID == s.folderID {
		return nil, s.err
	}
	return s.Store.ListChildren(ctx, parentID)
}
