package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/driftsec/authcore/storage"
)

// Revoke revokes a refresh token and withdraws the consent that backed it,
// so the next authorization request for the pair prompts the owner again.
//
// Per RFC 7009 the endpoint must not reveal whether the token existed:
// unknown and already-revoked tokens return nil. Only a storage failure is
// an error.
func (s *Server) Revoke(ctx context.Context, rawToken string) error {
	record, err := s.tokens.RevokeRefreshToken(ctx, hashToken(rawToken), s.now())
	if errors.Is(err, storage.ErrTokenNotFound) {
		s.Logger.Debug("Revocation of unknown token",
			"token_prefix", safeTruncate(rawToken, 8))
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	// Cascade: the owner's approval of this client is withdrawn together
	// with the token.
	if err := s.consents.DeleteConsent(ctx, record.OwnerID, record.ClientID); err != nil {
		return fmt.Errorf("delete consent: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenRevoked(record.OwnerID, record.ClientID)
		s.Auditor.LogConsentRevoked(record.OwnerID, record.ClientID)
	}
	s.Logger.Info("Revoked refresh token",
		"user_id", record.OwnerID,
		"client_id", record.ClientID)

	return nil
}
