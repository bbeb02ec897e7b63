package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind separates access tokens from refresh tokens. The two kinds are
// also signed with different secrets.
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

var errWrongKind = errors.New("wrong token kind")

// Claims is the body of every token the store server hands out. The jti
// identifies a refresh token once it has been exchanged.
type Claims struct {
	Kind TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// GenerateTokens signs an access/refresh pair for subject.
func GenerateTokens(subject string, config *Config) (access string, refresh string, err error) {
	access, err = NewToken(subject, config.TokenIssuer, config.AccessTokenSecret, config.AccessTokenExpiry, AccessToken)
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}
	refresh, err = NewToken(subject, config.TokenIssuer, config.RefreshTokenSecret, config.RefreshTokenExpiry, RefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}
	return access, refresh, nil
}

// NewToken signs an HS256 token of the given kind. Without a positive expiry
// the token carries no exp claim.
func NewToken(subject, issuer, secret string, expiry time.Duration, kind TokenKind) (string, error) {
	now := time.Now()
	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Subject:  subject,
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiry))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseClaims verifies the signature and time claims of token.
func ParseClaims(token, secret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func parseKind(token, secret string, kind TokenKind) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("invalid %s token: empty", kind)
	}
	claims, err := ParseClaims(token, secret)
	if err != nil {
		return nil, fmt.Errorf("invalid %s token: %w", kind, err)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("invalid %s token: %w %q", kind, errWrongKind, claims.Kind)
	}
	return claims, nil
}
