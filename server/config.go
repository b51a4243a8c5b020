package server

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// Default lifetimes applied when the corresponding Config field is zero.
const (
	// DefaultAuthorizationCodeTTL is the default authorization code lifetime.
	// Codes are single-use and short-lived; one minute is enough for the
	// client to complete the redirect round trip.
	DefaultAuthorizationCodeTTL = 1 * time.Minute

	// DefaultAccessTokenTTL is the default access token lifetime.
	DefaultAccessTokenTTL = 1 * time.Hour

	// DefaultRefreshTokenTTL is the default refresh token lifetime.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// DefaultSessionTTL is the default login session lifetime.
	DefaultSessionTTL = 24 * time.Hour
)

// Client is a registered OAuth client. Clients are confidential to the
// deployment and configured statically; there is no dynamic registration.
type Client struct {
	// ID identifies the client in authorization and token requests.
	ID string

	// Name is shown to the resource owner on the consent page.
	Name string

	// RedirectURI is the exact redirect URI registered for the client.
	// Comparison is byte-exact, no prefix or pattern matching.
	RedirectURI string
}

// Config holds the authorization server configuration.
type Config struct {
	// Issuer is the external base URL of this server, used as the "iss"
	// claim of issued access tokens.
	Issuer string

	// Clients is the static client registry.
	Clients []Client

	// SessionSigningKey signs login session tokens (HMAC-SHA256).
	SessionSigningKey []byte

	// AccessTokenSigningKey signs issued access tokens (HMAC-SHA256).
	AccessTokenSigningKey []byte

	// AuthorizationCodeTTL is the lifetime of issued authorization codes.
	AuthorizationCodeTTL time.Duration

	// AccessTokenTTL is the lifetime of issued access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the lifetime of issued refresh tokens.
	RefreshTokenTTL time.Duration

	// SessionTTL is the lifetime of login sessions.
	SessionTTL time.Duration
}

// applyDefaults fills in zero-valued lifetimes and logs what was defaulted.
func applyDefaults(config *Config, logger *slog.Logger) *Config {
	cfg := *config

	if cfg.AuthorizationCodeTTL == 0 {
		cfg.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
		logger.Debug("Using default authorization code TTL", "ttl", cfg.AuthorizationCodeTTL)
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
		logger.Debug("Using default access token TTL", "ttl", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = DefaultRefreshTokenTTL
		logger.Debug("Using default refresh token TTL", "ttl", cfg.RefreshTokenTTL)
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultSessionTTL
		logger.Debug("Using default session TTL", "ttl", cfg.SessionTTL)
	}

	return &cfg
}

// validate rejects configurations the server cannot safely run with.
func (c *Config) validate() error {
	if len(c.SessionSigningKey) < 32 {
		return fmt.Errorf("session signing key must be at least 32 bytes")
	}
	if len(c.AccessTokenSigningKey) < 32 {
		return fmt.Errorf("access token signing key must be at least 32 bytes")
	}
	seen := make(map[string]bool, len(c.Clients))
	for _, client := range c.Clients {
		if client.ID == "" {
			return fmt.Errorf("client with empty ID")
		}
		if seen[client.ID] {
			return fmt.Errorf("duplicate client ID %q", client.ID)
		}
		seen[client.ID] = true
		if _, err := url.Parse(client.RedirectURI); err != nil || client.RedirectURI == "" {
			return fmt.Errorf("client %q: invalid redirect URI %q", client.ID, client.RedirectURI)
		}
	}
	return nil
}

// clientByID returns the registered client with the given ID, or nil.
func (c *Config) clientByID(id string) *Client {
	for i := range c.Clients {
		if c.Clients[i].ID == id {
			return &c.Clients[i]
		}
	}
	return nil
}
