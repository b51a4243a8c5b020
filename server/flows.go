package server

import (
	"context"
	"fmt"
	"net/url"

	"github.com/driftsec/authcore/storage"
)

// OAuth 2.0 error codes from RFC 6749, as they appear in authorization
// redirects and error pages. The values shared with the root package are
// intentionally duplicated to avoid circular imports (the root package
// imports server, server can't import root); keep the overlapping values
// in sync with errors.go.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
)

// ConsentDecisionAllow is the consent form value that approves the request.
// Any other value is treated as denial.
const ConsentDecisionAllow = "allow"

// AuthorizationError is a protocol error raised while validating an
// authorization request. It is rendered to the resource owner directly;
// the server never redirects to an unverified redirect URI.
type AuthorizationError struct {
	Code        string
	Description string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// AuthorizationRequest is a parsed authorization request, either fresh from
// the authorization endpoint or replayed through the consent form.
type AuthorizationRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ValidateAuthorizationRequest checks an authorization request in order:
// client identity, redirect URI, response type, state, then PKCE. It returns
// the registered client and normalizes an absent redirect_uri to the
// registered one. All failures are *AuthorizationError.
func (s *Server) ValidateAuthorizationRequest(req *AuthorizationRequest) (*Client, error) {
	client := s.Config.clientByID(req.ClientID)
	if client == nil {
		s.logAuthFailure("", req.ClientID, "unknown_client")
		return nil, &AuthorizationError{
			Code:        ErrorCodeInvalidRequest,
			Description: "unknown client_id",
		}
	}

	// The redirect URI must match the registration byte for byte before
	// anything is ever sent to it. When omitted, the registered URI is used.
	if req.RedirectURI == "" {
		req.RedirectURI = client.RedirectURI
	} else if req.RedirectURI != client.RedirectURI {
		s.logAuthFailure("", req.ClientID, "redirect_uri_mismatch")
		return nil, &AuthorizationError{
			Code:        ErrorCodeInvalidRequest,
			Description: "redirect_uri does not match the registered value",
		}
	}

	if req.ResponseType != "code" {
		s.logAuthFailure("", req.ClientID, "unsupported_response_type")
		return nil, &AuthorizationError{
			Code:        ErrorCodeUnsupportedResponseType,
			Description: "only response_type=code is supported",
		}
	}

	if req.State == "" {
		s.logAuthFailure("", req.ClientID, "missing_state")
		return nil, &AuthorizationError{
			Code:        ErrorCodeInvalidRequest,
			Description: "state parameter is required",
		}
	}

	if req.CodeChallenge == "" {
		s.logAuthFailure("", req.ClientID, "missing_code_challenge")
		return nil, &AuthorizationError{
			Code:        ErrorCodeInvalidRequest,
			Description: "code_challenge is required",
		}
	}
	if req.CodeChallengeMethod != CodeChallengeMethodS256 {
		s.logAuthFailure("", req.ClientID, "unsupported_code_challenge_method")
		return nil, &AuthorizationError{
			Code:        ErrorCodeInvalidRequest,
			Description: "code_challenge_method must be S256",
		}
	}

	return client, nil
}

// HasConsent reports whether the owner has already approved the client.
func (s *Server) HasConsent(ctx context.Context, ownerID, clientID string) (bool, error) {
	return s.consents.HasConsent(ctx, ownerID, clientID)
}

// FinishAuthorization resolves a consent decision for a validated request and
// returns the URL to redirect the owner's user agent to. Denial redirects
// with error=access_denied; approval records the consent (find-or-create),
// issues a single-use authorization code, and redirects with it.
func (s *Server) FinishAuthorization(ctx context.Context, ownerID, decision string, req *AuthorizationRequest) (string, error) {
	if decision != ConsentDecisionAllow {
		s.logAuthFailure(ownerID, req.ClientID, "consent_denied")
		return buildRedirect(req.RedirectURI, url.Values{
			"error": {ErrorCodeAccessDenied},
			"state": {req.State},
		})
	}

	now := s.now()
	consent := &storage.Consent{
		OwnerID:   ownerID,
		ClientID:  req.ClientID,
		Scope:     req.Scope,
		GrantedAt: now,
	}
	if err := s.consents.SaveConsent(ctx, consent); err != nil {
		return "", fmt.Errorf("save consent: %w", err)
	}
	if s.Auditor != nil {
		s.Auditor.LogConsentGranted(ownerID, req.ClientID)
	}

	code := &storage.AuthorizationCode{
		Code:          s.newSecret(),
		OwnerID:       ownerID,
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		Scope:         req.Scope,
		CodeChallenge: req.CodeChallenge,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.Config.AuthorizationCodeTTL),
	}
	if err := s.codes.SaveAuthorizationCode(ctx, code); err != nil {
		return "", fmt.Errorf("save authorization code: %w", err)
	}

	s.Logger.Info("Issued authorization code",
		"user_id", ownerID,
		"client_id", req.ClientID,
		"code_prefix", safeTruncate(code.Code, 8),
		"expires_at", code.ExpiresAt)

	return buildRedirect(req.RedirectURI, url.Values{
		"code":  {code.Code},
		"state": {req.State},
	})
}

// buildRedirect appends params to the redirect URI, preserving any query
// string the client registered with.
func buildRedirect(redirectURI string, params url.Values) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("parse redirect URI: %w", err)
	}

	q := u.Query()
	for key, values := range params {
		for _, v := range values {
			q.Set(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Server) logAuthFailure(userID, clientID, reason string) {
	if s.Auditor != nil {
		s.Auditor.LogAuthFailure(userID, clientID, reason)
	}
}
