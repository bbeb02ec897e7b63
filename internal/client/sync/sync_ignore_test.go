package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncIgnoreList_Defaults(t *testing.T) {
	ignore := NewSyncIgnoreList("", DefaultMetadataFileName)

	tests := []struct {
		path   string
		isDir  bool
		ignore bool
	}{
		{".sync_metadata.json", false, true},
		{".sync.lock", false, true},
		{".syncignore", false, true},
		{".a.txt.123.sync-tmp", false, true},
		{"sub/.DS_Store", false, true},
		{"notes.txt.swp", false, true},
		{"draft~", false, true},
		{"a.txt", false, false},
		{"sub", true, false},
		{"sub/b.txt", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.ignore, ignore.ShouldIgnore(tt.path, tt.isDir))
		})
	}
}

func TestSyncIgnoreList_File(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, DefaultIgnoreFileName)
	rules := "# build output\n\ncache/\n*.log\n/top.txt\n"
	require.NoError(t, os.WriteFile(file, []byte(rules), 0o644))

	ignore := NewSyncIgnoreList(file)
	ignore.Load()

	assert.True(t, ignore.ShouldIgnore("cache", true))
	assert.True(t, ignore.ShouldIgnore("sub/cache", true))
	assert.True(t, ignore.ShouldIgnore("run.log", false))
	assert.True(t, ignore.ShouldIgnore("sub/run.log", false))
	assert.True(t, ignore.ShouldIgnore("top.txt", false))
	assert.False(t, ignore.ShouldIgnore("sub/top.txt", false))
	assert.False(t, ignore.ShouldIgnore("cache.txt", false))
	assert.False(t, ignore.ShouldIgnore("# build output", false))
}

func TestSyncIgnoreList_MissingFile(t *testing.T) {
	ignore := NewSyncIgnoreList(filepath.Join(t.TempDir(), "nope"))
	assert.False(t, ignore.ShouldIgnore("a.txt", false))
	assert.True(t, ignore.ShouldIgnore(".sync.lock", false))
}
