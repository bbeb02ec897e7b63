package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/remote/httpstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "alice"}
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func newManager(t *testing.T, serverURL string, tokens *httpstore.TokenResponse) *TokenManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.json")
	if tokens != nil {
		require.NoError(t, WriteTokenFile(path, tokens))
	}
	m := NewTokenManager(serverURL, path)
	require.NoError(t, m.Load())
	return m
}

func TestTokenManager_FreshTokenIsKept(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	access := signToken(t, time.Now().Add(time.Hour))
	m := newManager(t, srv.URL, &httpstore.TokenResponse{AccessToken: access, RefreshToken: "r"})

	require.NoError(t, m.EnsureValid(context.Background()))
	assert.Equal(t, access, m.AccessToken())
	assert.Zero(t, calls.Load())
}

func TestTokenManager_TokenWithoutExpiry(t *testing.T) {
	access := signToken(t, time.Time{})
	m := newManager(t, "http://127.0.0.1:1", &httpstore.TokenResponse{AccessToken: access})

	require.NoError(t, m.EnsureValid(context.Background()))
}

func TestTokenManager_RefreshesExpiringToken(t *testing.T) {
	fresh := signToken(t, time.Now().Add(time.Hour))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, httpstore.PathAuthRefresh, r.URL.Path)
		var req httpstore.RefreshTokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "old-refresh", req.RefreshToken)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&httpstore.TokenResponse{AccessToken: fresh, RefreshToken: "new-refresh"})
	}))
	defer srv.Close()

	m := newManager(t, srv.URL, &httpstore.TokenResponse{
		AccessToken:  signToken(t, time.Now().Add(2*time.Minute)),
		RefreshToken: "old-refresh",
	})

	require.NoError(t, m.EnsureValid(context.Background()))
	assert.Equal(t, fresh, m.AccessToken())

	saved, err := ReadTokenFile(m.path)
	require.NoError(t, err)
	assert.Equal(t, fresh, saved.AccessToken)
	assert.Equal(t, "new-refresh", saved.RefreshToken)
}

func TestTokenManager_FailedRefreshNeedsReauth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"E_AUTH_TOKEN_REFRESH_FAILED","error":"token reused"}`))
	}))
	defer srv.Close()

	m := newManager(t, srv.URL, &httpstore.TokenResponse{
		AccessToken:  signToken(t, time.Now().Add(-time.Minute)),
		RefreshToken: "spent",
	})

	err := m.EnsureValid(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrUnauthorized)
	assert.True(t, httpstore.IsAPIError(err, httpstore.CodeTokenRefreshFailed))
}

func TestTokenManager_MissingTokens(t *testing.T) {
	m := newManager(t, "http://127.0.0.1:1", nil)
	assert.Empty(t, m.AccessToken())

	err := m.EnsureValid(context.Background())
	assert.ErrorIs(t, err, remote.ErrUnauthorized)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestTokenManager_GarbageToken(t *testing.T) {
	m := newManager(t, "http://127.0.0.1:1", &httpstore.TokenResponse{AccessToken: "not-a-jwt"})

	err := m.EnsureValid(context.Background())
	assert.ErrorIs(t, err, remote.ErrUnauthorized)
}

func TestTokenManager_ExpiredWithoutRefreshToken(t *testing.T) {
	m := newManager(t, "http://127.0.0.1:1", &httpstore.TokenResponse{
		AccessToken: signToken(t, time.Now().Add(-time.Minute)),
	})

	err := m.EnsureValid(context.Background())
	assert.ErrorIs(t, err, remote.ErrUnauthorized)
}
