package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by store implementations. Callers match with
// errors.Is and collapse all of them to the generic protocol errors so that
// "existed but was wrong" and "never existed" are indistinguishable to
// clients.
var (
	// ErrCodeNotFound indicates the authorization code does not exist,
	// has expired, or was already consumed.
	ErrCodeNotFound = errors.New("authorization code not found")

	// ErrTokenNotFound indicates the refresh token does not exist, has
	// expired, was revoked, or was already rotated.
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrUserNotFound indicates the resource owner does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists indicates a resource owner with the same email is
	// already registered.
	ErrUserExists = errors.New("user already exists")
)

// AuthorizationCode is a single-use credential binding a resource owner's
// consent to the client, redirect URI, scope, and PKCE challenge that
// initiated the flow.
type AuthorizationCode struct {
	Code          string
	OwnerID       string
	ClientID      string
	RedirectURI   string
	Scope         string
	CodeChallenge string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// RefreshToken is the persisted form of a refresh token. Only the SHA-256
// hash of the raw secret is ever stored.
type RefreshToken struct {
	TokenHash string
	OwnerID   string
	ClientID  string
	Scope     string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Revoked reports whether the token has been explicitly revoked.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Consent records a resource owner's approval of a client, unique per
// (owner, client) pair.
type Consent struct {
	OwnerID   string
	ClientID  string
	Scope     string
	GrantedAt time.Time
}

// User is a resource owner. Credential storage lives with the store; the
// protocol engine only ever references owners by ID.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// CodeStore persists authorization codes.
//
// ConsumeAuthorizationCode MUST be atomic per code: of two concurrent calls
// with the same code, exactly one receives the record and the other receives
// ErrCodeNotFound. The check against expiry and the delete happen in the same
// logical step, so a consumed code can never be redeemed again.
type CodeStore interface {
	// SaveAuthorizationCode persists a newly issued code.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// ConsumeAuthorizationCode atomically validates and deletes a code.
	// Returns ErrCodeNotFound if the code does not exist, expired before
	// now, or was already consumed.
	ConsumeAuthorizationCode(ctx context.Context, code string, now time.Time) (*AuthorizationCode, error)
}

// TokenStore persists refresh tokens, keyed by token hash.
//
// ConsumeRefreshToken MUST be atomic per hash for the same reason as code
// consumption: concurrent reuse of a rotated token must surface as a failed
// second attempt, never as a second valid issuance.
type TokenStore interface {
	// SaveRefreshToken persists a refresh token record.
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// ConsumeRefreshToken atomically validates and deletes a token by
	// hash. Returns ErrTokenNotFound if the token does not exist, is
	// revoked, or expired before now.
	ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)

	// RevokeRefreshToken marks a token revoked and returns its record so
	// the caller can cascade consent withdrawal. Returns ErrTokenNotFound
	// if the token does not exist or is already revoked.
	RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)
}

// ConsentStore persists resource-owner approvals.
type ConsentStore interface {
	// SaveConsent records approval for an owner/client pair. It is
	// idempotent: an existing record for the pair is left in place.
	SaveConsent(ctx context.Context, consent *Consent) error

	// HasConsent reports whether approval is recorded for the pair.
	HasConsent(ctx context.Context, ownerID, clientID string) (bool, error)

	// DeleteConsent removes the approval for the pair. Deleting a missing
	// record is not an error.
	DeleteConsent(ctx context.Context, ownerID, clientID string) error
}

// UserStore persists resource owners. This is the user-management
// collaborator of the protocol engine; the engine itself never writes users.
type UserStore interface {
	// CreateUser persists a new resource owner. Returns ErrUserExists if
	// the email is already registered.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByEmail retrieves an owner by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUserByID retrieves an owner by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// Store combines all persistence interfaces. Backends implement it as a
// whole; consumers should depend on the narrowest interface they need.
type Store interface {
	CodeStore
	TokenStore
	ConsentStore
	UserStore
}
