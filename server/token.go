package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/driftsec/authcore/storage"
)

// ErrInvalidGrant is returned for every semantic token-request failure:
// unknown, expired, or replayed code, wrong client, wrong redirect URI,
// failed PKCE, and unknown or rotated refresh token. Collapsing them all
// into one error keeps the endpoint from acting as an oracle; the real
// reason is logged server-side.
var ErrInvalidGrant = errors.New("invalid grant")

// TokenPair is a successful token response: a signed access token and the
// raw refresh token, which exists only in this response and in the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Scope        string
}

// hashToken returns the hex-encoded SHA-256 digest of a raw refresh token.
// Stores only ever see the digest, so a leaked store cannot mint requests.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ExchangeAuthorizationCode redeems an authorization code for a token pair.
//
// The code is consumed atomically before any binding check runs, so a code
// that reaches this method is burned whether or not the rest of the request
// is valid. A concurrent second redemption of the same code therefore fails
// at the store, and a failed PKCE check cannot be retried with the same code.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (*TokenPair, error) {
	record, err := s.codes.ConsumeAuthorizationCode(ctx, code, s.now())
	if errors.Is(err, storage.ErrCodeNotFound) {
		s.logAuthFailure("", clientID, "code_not_found_or_expired")
		s.Logger.Debug("Authorization code rejected",
			"client_id", clientID,
			"code_prefix", safeTruncate(code, 8))
		return nil, ErrInvalidGrant
	}
	if err != nil {
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}

	if record.ClientID != clientID {
		s.logAuthFailure(record.OwnerID, clientID, "code_client_mismatch")
		return nil, ErrInvalidGrant
	}
	if record.RedirectURI != redirectURI {
		s.logAuthFailure(record.OwnerID, clientID, "code_redirect_uri_mismatch")
		return nil, ErrInvalidGrant
	}
	if !verifyCodeChallenge(record.CodeChallenge, codeVerifier) {
		s.logAuthFailure(record.OwnerID, clientID, "pkce_verification_failed")
		s.Logger.Debug("PKCE verification failed",
			"client_id", clientID,
			"code_prefix", safeTruncate(code, 8))
		return nil, ErrInvalidGrant
	}

	pair, err := s.issueTokenPair(ctx, record.OwnerID, record.ClientID, record.Scope)
	if err != nil {
		return nil, err
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(record.OwnerID, record.ClientID)
	}
	s.Logger.Info("Exchanged authorization code",
		"user_id", record.OwnerID,
		"client_id", record.ClientID,
		"scope", record.Scope)

	return pair, nil
}

// RefreshAccessToken rotates a refresh token: the presented token is
// consumed atomically and a new pair is issued with the same owner, client,
// and scope. A replay of the old token fails at the store.
func (s *Server) RefreshAccessToken(ctx context.Context, rawToken string) (*TokenPair, error) {
	record, err := s.tokens.ConsumeRefreshToken(ctx, hashToken(rawToken), s.now())
	if errors.Is(err, storage.ErrTokenNotFound) {
		s.logAuthFailure("", "", "refresh_token_not_found")
		s.Logger.Debug("Refresh token rejected",
			"token_prefix", safeTruncate(rawToken, 8))
		return nil, ErrInvalidGrant
	}
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	pair, err := s.issueTokenPair(ctx, record.OwnerID, record.ClientID, record.Scope)
	if err != nil {
		return nil, err
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenRefreshed(record.OwnerID, record.ClientID)
	}
	s.Logger.Info("Rotated refresh token",
		"user_id", record.OwnerID,
		"client_id", record.ClientID)

	return pair, nil
}

// issueTokenPair mints an access token and a fresh refresh token and
// persists the refresh token's hash.
func (s *Server) issueTokenPair(ctx context.Context, ownerID, clientID, scope string) (*TokenPair, error) {
	accessToken, err := s.issueAccessToken(ownerID, clientID, scope)
	if err != nil {
		return nil, err
	}

	now := s.now()
	refreshToken := s.newSecret()
	record := &storage.RefreshToken{
		TokenHash: hashToken(refreshToken),
		OwnerID:   ownerID,
		ClientID:  clientID,
		Scope:     scope,
		CreatedAt: now,
		ExpiresAt: now.Add(s.Config.RefreshTokenTTL),
	}
	if err := s.tokens.SaveRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.Config.AccessTokenTTL.Seconds()),
		Scope:        scope,
	}, nil
}
