package auth

import (
	"fmt"
	"time"
)

const (
	DefaultAccessTokenExpiry  = 1 * time.Hour
	DefaultRefreshTokenExpiry = 30 * 24 * time.Hour
)

type Config struct {
	Enabled            bool          `mapstructure:"enabled"`
	TokenIssuer        string        `mapstructure:"token_issuer"`
	RefreshTokenSecret string        `mapstructure:"refresh_token_secret"`
	RefreshTokenExpiry time.Duration `mapstructure:"refresh_token_expiry"`
	AccessTokenSecret  string        `mapstructure:"access_token_secret"`
	AccessTokenExpiry  time.Duration `mapstructure:"access_token_expiry"`
}

func (c *Config) Validate() error {
	if c.Enabled {
		if c.TokenIssuer == "" {
			return fmt.Errorf("auth `token_issuer` is required when auth is enabled")
		}
		if c.RefreshTokenSecret == "" {
			return fmt.Errorf("auth `refresh_token_secret` is required when auth is enabled")
		}
		if c.AccessTokenSecret == "" {
			return fmt.Errorf("auth `access_token_secret` is required when auth is enabled")
		}
		if c.AccessTokenSecret == c.RefreshTokenSecret {
			return fmt.Errorf("auth access and refresh token secrets must differ")
		}
	}
	return nil
}
