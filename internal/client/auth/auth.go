// Package auth keeps the bearer tokens of the http backend fresh.
package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/remote/httpstore"
	"github.com/openmined/syncmirror/internal/utils"
)

// RefreshWindow is how close to expiry an access token may get before it is
// replaced.
const RefreshWindow = 5 * time.Minute

var ErrNoToken = errors.New("no token")

// TokenManager holds the tokens stored in a token file and refreshes the
// access token against the server when needed.
type TokenManager struct {
	path   string
	client *resty.Client
	now    func() time.Time

	mu     sync.RWMutex
	tokens *httpstore.TokenResponse
}

func NewTokenManager(serverURL, tokenFile string) *TokenManager {
	client := resty.New().
		SetBaseURL(serverURL).
		SetTimeout(30 * time.Second).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &TokenManager{
		path:   tokenFile,
		client: client,
		now:    time.Now,
	}
}

// Load reads the token file. A missing file leaves the manager empty.
func (m *TokenManager) Load() error {
	tokens, err := ReadTokenFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	m.mu.Lock()
	m.tokens = tokens
	m.mu.Unlock()
	return nil
}

// AccessToken returns the current access token, or "" when none is loaded.
func (m *TokenManager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tokens == nil {
		return ""
	}
	return m.tokens.AccessToken
}

// EnsureValid refreshes the access token when it expires within
// RefreshWindow and persists the new pair. Errors wrap
// remote.ErrUnauthorized when the user has to provide new tokens.
func (m *TokenManager) EnsureValid(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tokens == nil || m.tokens.AccessToken == "" {
		return fmt.Errorf("%w: %w in %s", remote.ErrUnauthorized, ErrNoToken, m.path)
	}

	exp, err := tokenExpiry(m.tokens.AccessToken)
	if err != nil {
		return fmt.Errorf("%w: access token: %w", remote.ErrUnauthorized, err)
	}
	if exp.IsZero() || exp.Sub(m.now()) > RefreshWindow {
		return nil
	}

	slog.Info("access token expiring, refreshing", "expiry", exp)
	if m.tokens.RefreshToken == "" {
		return fmt.Errorf("%w: access token expired and no refresh token", remote.ErrUnauthorized)
	}

	tokens, err := m.refresh(ctx, m.tokens.RefreshToken)
	if err != nil {
		return err
	}
	m.tokens = tokens

	if err := WriteTokenFile(m.path, tokens); err != nil {
		slog.Warn("failed to save refreshed tokens", "path", m.path, "error", err)
	}
	return nil
}

func (m *TokenManager) refresh(ctx context.Context, refreshToken string) (*httpstore.TokenResponse, error) {
	var resp httpstore.TokenResponse
	var apiErr httpstore.APIError

	res, err := m.client.R().
		SetContext(ctx).
		SetBody(&httpstore.RefreshTokenRequest{RefreshToken: refreshToken}).
		SetResult(&resp).
		SetError(&apiErr).
		Post(httpstore.PathAuthRefresh)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	if res.IsError() {
		if apiErr.Code != "" {
			return nil, fmt.Errorf("%w: refresh token: %w", remote.ErrUnauthorized, &apiErr)
		}
		return nil, fmt.Errorf("%w: refresh token: status %d: %s", remote.ErrUnauthorized, res.StatusCode(), res.String())
	}

	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: refresh token: empty access token in response", remote.ErrUnauthorized)
	}
	if resp.RefreshToken == "" {
		resp.RefreshToken = refreshToken
	}
	return &resp, nil
}

// tokenExpiry reads the exp claim without verifying the signature. A token
// without exp yields the zero time.
func tokenExpiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

func ReadTokenFile(path string) (*httpstore.TokenResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tokens httpstore.TokenResponse
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("token file %s: %w", path, err)
	}
	return &tokens, nil
}

func WriteTokenFile(path string, tokens *httpstore.TokenResponse) error {
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return err
	}
	return utils.AtomicWrite(path, bytes.NewReader(data), 0o600)
}

var _ remote.CredentialSupplier = (*TokenManager)(nil)
var _ httpstore.TokenSource = (*TokenManager)(nil)
