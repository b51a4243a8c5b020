// Package postgres provides a PostgreSQL-backed implementation of all
// storage interfaces using lib/pq. It is the backend of choice when several
// server instances share one store behind a load balancer.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/driftsec/authcore/storage"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolation = "23505"

// Store is a PostgreSQL implementation of storage.Store. Atomic consumption
// is expressed as DELETE ... RETURNING, which PostgreSQL guarantees to hand
// the deleted row to exactly one of any number of concurrent callers.
type Store struct {
	db *sql.DB
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// New connects to the database at dsn and initializes the schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres database: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS authorization_codes (
			code TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			redirect_uri TEXT NOT NULL,
			scope TEXT NOT NULL,
			code_challenge TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			token_hash TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			scope TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS consents (
			owner_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			scope TEXT NOT NULL,
			granted_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (owner_id, client_id)
		);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
	}
	return nil
}

// SaveAuthorizationCode persists a newly issued code.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO authorization_codes (code, owner_id, client_id, redirect_uri, scope, code_challenge, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		code.Code, code.OwnerID, code.ClientID, code.RedirectURI, code.Scope,
		code.CodeChallenge, code.CreatedAt, code.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save authorization code: %w", err)
	}
	return nil
}

// ConsumeAuthorizationCode atomically validates and deletes a code.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string, now time.Time) (*storage.AuthorizationCode, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM authorization_codes WHERE code = $1
		 RETURNING owner_id, client_id, redirect_uri, scope, code_challenge, created_at, expires_at`,
		code)

	record := storage.AuthorizationCode{Code: code}
	err := row.Scan(&record.OwnerID, &record.ClientID, &record.RedirectURI,
		&record.Scope, &record.CodeChallenge, &record.CreatedAt, &record.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}

	if now.After(record.ExpiresAt) {
		return nil, storage.ErrCodeNotFound
	}
	return &record, nil
}

// SaveRefreshToken persists a refresh token record keyed by hash.
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	var revokedAt sql.NullTime
	if token.RevokedAt != nil {
		revokedAt = sql.NullTime{Time: *token.RevokedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, owner_id, client_id, scope, created_at, expires_at, revoked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.TokenHash, token.OwnerID, token.ClientID, token.Scope,
		token.CreatedAt, token.ExpiresAt, revokedAt)
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// ConsumeRefreshToken atomically validates and deletes a token by hash.
// Revoked tokens are excluded from the delete so their records stay flagged.
func (s *Store) ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*storage.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM refresh_tokens WHERE token_hash = $1 AND revoked_at IS NULL
		 RETURNING owner_id, client_id, scope, created_at, expires_at`,
		tokenHash)

	record := storage.RefreshToken{TokenHash: tokenHash}
	err := row.Scan(&record.OwnerID, &record.ClientID, &record.Scope,
		&record.CreatedAt, &record.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	if now.After(record.ExpiresAt) {
		return nil, storage.ErrTokenNotFound
	}
	return &record, nil
}

// RevokeRefreshToken marks a token revoked and returns its record.
func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*storage.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE token_hash = $1 AND revoked_at IS NULL
		 RETURNING owner_id, client_id, scope, created_at, expires_at`,
		tokenHash, now)

	record := storage.RefreshToken{TokenHash: tokenHash}
	err := row.Scan(&record.OwnerID, &record.ClientID, &record.Scope,
		&record.CreatedAt, &record.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}

	revokedAt := now
	record.RevokedAt = &revokedAt
	return &record, nil
}

// SaveConsent records approval for an owner/client pair (find-or-create).
func (s *Store) SaveConsent(ctx context.Context, consent *storage.Consent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consents (owner_id, client_id, scope, granted_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (owner_id, client_id) DO NOTHING`,
		consent.OwnerID, consent.ClientID, consent.Scope, consent.GrantedAt)
	if err != nil {
		return fmt.Errorf("save consent: %w", err)
	}
	return nil
}

// HasConsent reports whether approval is recorded for the pair.
func (s *Store) HasConsent(ctx context.Context, ownerID, clientID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM consents WHERE owner_id = $1 AND client_id = $2`,
		ownerID, clientID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query consent: %w", err)
	}
	return true, nil
}

// DeleteConsent removes the approval for the pair.
func (s *Store) DeleteConsent(ctx context.Context, ownerID, clientID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM consents WHERE owner_id = $1 AND client_id = $2`, ownerID, clientID)
	if err != nil {
		return fmt.Errorf("delete consent: %w", err)
	}
	return nil
}

// CreateUser persists a new resource owner.
func (s *Store) CreateUser(ctx context.Context, user *storage.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Email, user.Name, user.PasswordHash, user.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return storage.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByEmail retrieves an owner by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	return s.getUser(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE email = $1`, email)
}

// GetUserByID retrieves an owner by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*storage.User, error) {
	return s.getUser(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE id = $1`, id)
}

func (s *Store) getUser(ctx context.Context, query, arg string) (*storage.User, error) {
	var user storage.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}
