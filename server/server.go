// Package server implements the OAuth 2.0 authorization server logic:
// authorization requests, consent, code issuance, token exchange with PKCE,
// refresh token rotation, and revocation. It is transport-agnostic; the HTTP
// surface lives in the root package.
package server

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/driftsec/authcore/security"
	"github.com/driftsec/authcore/storage"
)

// safeTruncate safely truncates a string to maxLen characters without
// panicking. Used to log prefixes of secrets without exposing them.
func safeTruncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// Server coordinates the authorization code flow against the storage
// backends. All methods are safe for concurrent use; single-use guarantees
// come from the atomic consume operations of the stores.
type Server struct {
	codes    storage.CodeStore
	tokens   storage.TokenStore
	consents storage.ConsentStore
	users    storage.UserStore

	Auditor *security.Auditor
	Logger  *slog.Logger
	Config  *Config

	// now and newSecret are injection points for tests. Production servers
	// use time.Now and oauth2.GenerateVerifier (43 chars of CSPRNG output).
	now       func() time.Time
	newSecret func() string
}

// New creates an authorization server on top of the given stores. A single
// storage.Store implementation is typically passed for all four.
func New(
	codes storage.CodeStore,
	tokens storage.TokenStore,
	consents storage.ConsentStore,
	users storage.UserStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if codes == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if consents == nil {
		return nil, fmt.Errorf("consent store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applyDefaults(config, logger)
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Server{
		codes:     codes,
		tokens:    tokens,
		consents:  consents,
		users:     users,
		Config:    config,
		Logger:    logger,
		now:       time.Now,
		newSecret: oauth2.GenerateVerifier,
	}, nil
}

// SetAuditor sets the security auditor.
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetClock overrides the time source. Intended for tests.
func (s *Server) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetSecretSource overrides the random secret generator. Intended for tests.
func (s *Server) SetSecretSource(gen func() string) {
	if gen != nil {
		s.newSecret = gen
	}
}
