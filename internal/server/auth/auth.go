// Package auth issues and validates the JWT pairs that guard the store API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	ErrInvalidRequestToken = errors.New("invalid request token")
	ErrRefreshTokenReused  = errors.New("refresh token already used")
)

// spentTokensSize bounds the set of remembered refresh token ids.
const spentTokensSize = 10_000

type AuthService struct {
	config *Config
	// refresh token ids that were already exchanged, kept until they would
	// have expired anyway
	spent *expirable.LRU[string, struct{}]
}

func NewAuthService(config *Config) *AuthService {
	if config.AccessTokenExpiry == 0 {
		config.AccessTokenExpiry = DefaultAccessTokenExpiry
	}
	if config.RefreshTokenExpiry == 0 {
		config.RefreshTokenExpiry = DefaultRefreshTokenExpiry
	}
	return &AuthService{
		config: config,
		spent:  expirable.NewLRU[string, struct{}](spentTokensSize, nil, config.RefreshTokenExpiry),
	}
}

func (s *AuthService) IsEnabled() bool {
	return s.config.Enabled
}

// IssueTokens mints a fresh pair for subject.
func (s *AuthService) IssueTokens(subject string) (string, string, error) {
	if subject == "" {
		return "", "", fmt.Errorf("subject is required")
	}
	return GenerateTokens(subject, s.config)
}

// RefreshToken exchanges a refresh token for a new pair. Each refresh token
// can be exchanged once.
func (s *AuthService) RefreshToken(ctx context.Context, oldRefreshToken string) (string, string, error) {
	if oldRefreshToken == "" {
		return "", "", ErrInvalidRequestToken
	}

	claims, err := s.ValidateRefreshToken(ctx, oldRefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to refresh token pair: %w", err)
	}

	if s.spent.Contains(claims.ID) {
		slog.Warn("refresh token reused", "subject", claims.Subject, "jti", claims.ID)
		return "", "", ErrRefreshTokenReused
	}
	s.spent.Add(claims.ID, struct{}{})

	accessToken, refreshToken, err := GenerateTokens(claims.Subject, s.config)
	if err != nil {
		return "", "", fmt.Errorf("failed to refresh token pair: %w", err)
	}
	return accessToken, refreshToken, nil
}

func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*Claims, error) {
	return parseKind(accessToken, s.config.AccessTokenSecret, AccessToken)
}

func (s *AuthService) ValidateRefreshToken(ctx context.Context, refreshToken string) (*Claims, error) {
	return parseKind(refreshToken, s.config.RefreshTokenSecret, RefreshToken)
}

// AccessTokenExpiry is how long freshly issued access tokens live.
func (s *AuthService) AccessTokenExpiry() time.Duration {
	return s.config.AccessTokenExpiry
}
