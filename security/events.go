package security

// Event type constants for security audit logging. Using constants keeps the
// event stream greppable and prevents typos at call sites.
const (
	// Token lifecycle events

	// EventTokenIssued is logged when a token pair is issued for an
	// authorization code.
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when a refresh token is rotated.
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when a refresh token is revoked.
	EventTokenRevoked = "token_revoked"

	// Consent events

	// EventConsentGranted is logged when a resource owner approves a client.
	EventConsentGranted = "consent_granted"

	// EventConsentRevoked is logged when a consent is withdrawn by the
	// revocation cascade.
	EventConsentRevoked = "consent_revoked"

	// Login events

	// EventLoginSuccess is logged when a resource owner authenticates.
	EventLoginSuccess = "login_success"

	// EventLoginFailure is logged when a login attempt fails.
	EventLoginFailure = "login_failure"

	// Security violation events

	// EventAuthFailure is logged when an authorization or token request is
	// rejected. The reason field carries the server-side cause that the
	// client-facing error deliberately hides.
	EventAuthFailure = "auth_failure"

	// EventRateLimitExceeded is logged when a rate limit is exceeded.
	EventRateLimitExceeded = "rate_limit_exceeded"
)
