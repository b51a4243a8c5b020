package server

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// accessTokenClaims is the claim set of issued access tokens.
type accessTokenClaims struct {
	jwt.RegisteredClaims

	// ClientID is the client the token was issued to.
	ClientID string `json:"client_id"`

	// Scope is the space-separated scope string granted with the token.
	Scope string `json:"scope,omitempty"`
}

// AccessTokenInfo is the validated content of an access token.
type AccessTokenInfo struct {
	OwnerID  string
	ClientID string
	Scope    string
}

// issueAccessToken mints a signed access token for the owner/client pair.
func (s *Server) issueAccessToken(ownerID, clientID, scope string) (string, error) {
	now := s.now()
	claims := accessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Config.Issuer,
			Subject:   ownerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.Config.AccessTokenTTL)),
		},
		ClientID: clientID,
		Scope:    scope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.Config.AccessTokenSigningKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken verifies an access token's signature and expiry and
// returns its content. Used by the userinfo endpoint.
func (s *Server) ValidateAccessToken(raw string) (*AccessTokenInfo, error) {
	var claims accessTokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) { return s.Config.AccessTokenSigningKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("validate access token: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("validate access token: missing subject")
	}

	return &AccessTokenInfo{
		OwnerID:  claims.Subject,
		ClientID: claims.ClientID,
		Scope:    claims.Scope,
	}, nil
}
