package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openmined/syncmirror/internal/client/config"
	"github.com/openmined/syncmirror/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, cfg string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func TestVersionCommand_PrintsDetailedVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.Detailed(), strings.TrimSpace(out))
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	tmp := t.TempDir()
	path := writeConfig(t, `{"local_dir":"/from/file","remote_root":"fileroot","backend":"dir","dir":{"path":"`+filepath.ToSlash(filepath.Join(tmp, "remote"))+`"}}`)

	cmd := newRootCmd()
	require.NoError(t, cmd.PersistentFlags().Set("config", path))
	require.NoError(t, cmd.PersistentFlags().Set("dir", filepath.Join(tmp, "local")))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, filepath.Join(tmp, "local"), cfg.LocalDir)
	assert.Equal(t, "fileroot", cfg.RemoteRoot)
	assert.Equal(t, config.BackendDir, cfg.Backend)
}

func TestLoadConfig_Env(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("SYNCMIRROR_CONFIG_PATH", writeConfig(t, `{}`))
	t.Setenv("SYNCMIRROR_LOCAL_DIR", filepath.Join(tmp, "local"))
	t.Setenv("SYNCMIRROR_BACKEND", "minio")
	t.Setenv("SYNCMIRROR_MINIO_BUCKET", "sync")

	cfg, err := loadConfig(newRootCmd())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmp, "local"), cfg.LocalDir)
	assert.Equal(t, config.BackendMinio, cfg.Backend)
	assert.Equal(t, "sync", cfg.Minio.Bucket)
}

func TestLoadConfig_ExplicitMissingFile(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.PersistentFlags().Set("config", filepath.Join(t.TempDir(), "missing.json")))

	_, err := loadConfig(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config read")
}

func TestPushPullStatus_DirBackend(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	dst := filepath.Join(tmp, "dst")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes", "b.txt"), []byte("beta"), 0o644))

	path := writeConfig(t, `{"backend":"dir","dir":{"path":"`+filepath.ToSlash(filepath.Join(tmp, "remote"))+`"}}`)

	out, err := execute(t, "status", "--config", path, "--dir", src)
	require.NoError(t, err)
	assert.Contains(t, out, "needs sync")
	assert.Contains(t, out, "a.txt")

	out, err = execute(t, "push", "--config", path, "--dir", src, "--no-progress")
	require.NoError(t, err, out)
	assert.Contains(t, out, "push completed")

	out, err = execute(t, "status", "--config", path, "--dir", src)
	require.NoError(t, err)
	assert.Contains(t, out, "in sync")

	out, err = execute(t, "pull", "--config", path, "--dir", dst, "--no-progress")
	require.NoError(t, err, out)
	assert.Contains(t, out, "pull completed")

	data, err := os.ReadFile(filepath.Join(dst, "notes", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(data))
}

func TestPull_MissingRootFails(t *testing.T) {
	tmp := t.TempDir()
	path := writeConfig(t, `{"backend":"dir","remote_root":"nothing-here","dir":{"path":"`+filepath.ToSlash(filepath.Join(tmp, "remote"))+`"}}`)

	out, err := execute(t, "pull", "--config", path, "--dir", filepath.Join(tmp, "dst"), "--no-progress")
	require.Error(t, err)
	assert.Contains(t, out, "not found on remote")
}
