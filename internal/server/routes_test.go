package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/remote/dirstore"
	"github.com/openmined/syncmirror/internal/remote/httpstore"
	"github.com/openmined/syncmirror/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

func newTestServer(t *testing.T, enabled bool) (*httptest.Server, *auth.AuthService) {
	t.Helper()
	store, err := dirstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	authSvc := auth.NewAuthService(&auth.Config{
		Enabled:            enabled,
		TokenIssuer:        "test",
		AccessTokenSecret:  "access",
		RefreshTokenSecret: "refresh",
		AccessTokenExpiry:  time.Minute,
		RefreshTokenExpiry: time.Hour,
	})

	srv := httptest.NewServer(SetupRoutes(store, authSvc))
	t.Cleanup(srv.Close)
	return srv, authSvc
}

func TestRoutes_StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, authSvc := newTestServer(t, true)

	access, _, err := authSvc.IssueTokens("alice")
	require.NoError(t, err)
	client := httpstore.New(srv.URL, staticToken(access))

	root, err := client.CreateFolder(ctx, ".db", remote.RootID)
	require.NoError(t, err)
	assert.True(t, root.IsFolder())

	file, err := client.CreateFile(ctx, &remote.CreateFileParams{
		Name:       "a.txt",
		ParentID:   root.ID,
		Content:    strings.NewReader("hello"),
		Size:       5,
		Properties: map[string]string{remote.PropMachineID: "m1", remote.PropVersion: "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a.txt", file.Name)
	assert.Equal(t, int64(5), file.Size)
	assert.Equal(t, "m1", file.Properties[remote.PropMachineID])

	empty, err := client.CreateFile(ctx, &remote.CreateFileParams{Name: "empty", ParentID: root.ID})
	require.NoError(t, err)
	assert.Zero(t, empty.Size)

	children, err := client.ListChildren(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, file.ID, children[0].ID)

	updated, err := client.UpdateFile(ctx, file.ID, strings.NewReader("hello again"), 11)
	require.NoError(t, err)
	assert.Equal(t, int64(11), updated.Size)

	meta, err := client.GetFileMetadata(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.ModifiedTime.UnixMilli(), meta.ModifiedTime.UnixMilli())

	rc, err := client.DownloadFile(ctx, file.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello again", string(data))
}

func TestRoutes_ErrorMapping(t *testing.T) {
	ctx := context.Background()
	srv, authSvc := newTestServer(t, true)

	access, _, err := authSvc.IssueTokens("alice")
	require.NoError(t, err)
	client := httpstore.New(srv.URL, staticToken(access))

	_, err = client.GetFileMetadata(ctx, "missing")
	assert.ErrorIs(t, err, remote.ErrNotFound)
	assert.True(t, httpstore.IsAPIError(err, httpstore.CodeNotFound))

	_, err = client.DownloadFile(ctx, "missing")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	_, err = client.ListChildren(ctx, "missing")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	anonymous := httpstore.New(srv.URL, nil)
	_, err = anonymous.ListChildren(ctx, remote.RootID)
	assert.ErrorIs(t, err, remote.ErrUnauthorized)
	assert.False(t, remote.IsRetryable(err))

	_, refresh, err := authSvc.IssueTokens("alice")
	require.NoError(t, err)
	wrongType := httpstore.New(srv.URL, staticToken(refresh))
	_, err = wrongType.ListChildren(ctx, remote.RootID)
	assert.ErrorIs(t, err, remote.ErrUnauthorized)
}

func TestRoutes_AuthDisabled(t *testing.T) {
	srv, _ := newTestServer(t, false)
	client := httpstore.New(srv.URL, nil)

	nodes, err := client.ListChildren(context.Background(), remote.RootID)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestRoutes_Health(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{DataDir: t.TempDir()}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultAddr, cfg.Http.Addr)

	assert.Error(t, (&Config{}).Validate())
	assert.Error(t, (&Config{DataDir: "x", Http: HttpConfig{CertFile: "c"}}).Validate())
}
