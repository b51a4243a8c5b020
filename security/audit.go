package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor emits structured security audit events. User identifiers and
// emails are hashed before logging so the audit stream carries no PII.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor. When enabled is false all
// logging methods are no-ops.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event is a single security audit event.
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII.
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogTokenIssued logs issuance of a token pair for an authorization code.
func (a *Auditor) LogTokenIssued(userID, clientID string) {
	a.LogEvent(Event{
		Type:     EventTokenIssued,
		UserID:   userID,
		ClientID: clientID,
	})
}

// LogTokenRefreshed logs a refresh token rotation.
func (a *Auditor) LogTokenRefreshed(userID, clientID string) {
	a.LogEvent(Event{
		Type:     EventTokenRefreshed,
		UserID:   userID,
		ClientID: clientID,
	})
}

// LogTokenRevoked logs a refresh token revocation.
func (a *Auditor) LogTokenRevoked(userID, clientID string) {
	a.LogEvent(Event{
		Type:     EventTokenRevoked,
		UserID:   userID,
		ClientID: clientID,
	})
}

// LogConsentGranted logs a resource owner approving a client.
func (a *Auditor) LogConsentGranted(userID, clientID string) {
	a.LogEvent(Event{
		Type:     EventConsentGranted,
		UserID:   userID,
		ClientID: clientID,
	})
}

// LogConsentRevoked logs a consent withdrawn by the revocation cascade.
func (a *Auditor) LogConsentRevoked(userID, clientID string) {
	a.LogEvent(Event{
		Type:     EventConsentRevoked,
		UserID:   userID,
		ClientID: clientID,
	})
}

// LogLoginSuccess logs a successful resource owner login.
func (a *Auditor) LogLoginSuccess(userID string) {
	a.LogEvent(Event{
		Type:   EventLoginSuccess,
		UserID: userID,
	})
}

// LogLoginFailure logs a failed login attempt. The email is hashed like a
// user ID.
func (a *Auditor) LogLoginFailure(email, reason string) {
	a.LogEvent(Event{
		Type:   EventLoginFailure,
		UserID: email,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogAuthFailure logs a rejected authorization or token request.
func (a *Auditor) LogAuthFailure(userID, clientID, reason string) {
	a.LogEvent(Event{
		Type:     EventAuthFailure,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation.
func (a *Auditor) LogRateLimitExceeded(ipAddress string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
	})
}

// hashForLogging creates a truncated SHA-256 hash of sensitive data so the
// same principal correlates across events without being identifiable.
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
