// Package sqlite provides a SQLite-backed implementation of all storage
// interfaces using the pure-Go modernc.org/sqlite driver. It is suitable for
// durable single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/driftsec/authcore/storage"
)

// Store is a SQLite implementation of storage.Store. Single-use enforcement
// relies on DELETE ... RETURNING, which SQLite executes as one atomic
// statement: of two concurrent consumers of the same key, only one sees the
// deleted row.
type Store struct {
	db *sql.DB
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// New opens (or creates) the database at path and initializes the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite handles one writer at a time; a larger pool only produces
	// SQLITE_BUSY errors under contention.
	db.SetMaxOpenConns(1)

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
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS authorization_codes (
			code TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			redirect_uri TEXT NOT NULL,
			scope TEXT NOT NULL,
			code_challenge TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			token_hash TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			scope TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			revoked_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS consents (
			owner_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			scope TEXT NOT NULL,
			granted_at INTEGER NOT NULL,
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
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		code.Code, code.OwnerID, code.ClientID, code.RedirectURI, code.Scope,
		code.CodeChallenge, code.CreatedAt.Unix(), code.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("save authorization code: %w", err)
	}
	return nil
}

// ConsumeAuthorizationCode atomically validates and deletes a code.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string, now time.Time) (*storage.AuthorizationCode, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM authorization_codes WHERE code = ?
		 RETURNING owner_id, client_id, redirect_uri, scope, code_challenge, created_at, expires_at`,
		code)

	record := storage.AuthorizationCode{Code: code}
	var createdAt, expiresAt int64
	err := row.Scan(&record.OwnerID, &record.ClientID, &record.RedirectURI,
		&record.Scope, &record.CodeChallenge, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}

	record.CreatedAt = time.Unix(createdAt, 0)
	record.ExpiresAt = time.Unix(expiresAt, 0)

	if now.After(record.ExpiresAt) {
		return nil, storage.ErrCodeNotFound
	}
	return &record, nil
}

// SaveRefreshToken persists a refresh token record keyed by hash.
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	var revokedAt sql.NullInt64
	if token.RevokedAt != nil {
		revokedAt = sql.NullInt64{Int64: token.RevokedAt.Unix(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, owner_id, client_id, scope, created_at, expires_at, revoked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		token.TokenHash, token.OwnerID, token.ClientID, token.Scope,
		token.CreatedAt.Unix(), token.ExpiresAt.Unix(), revokedAt)
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// ConsumeRefreshToken atomically validates and deletes a token by hash.
// Revoked tokens are excluded from the delete so their records stay flagged.
func (s *Store) ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*storage.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM refresh_tokens WHERE token_hash = ? AND revoked_at IS NULL
		 RETURNING owner_id, client_id, scope, created_at, expires_at`,
		tokenHash)

	record := storage.RefreshToken{TokenHash: tokenHash}
	var createdAt, expiresAt int64
	err := row.Scan(&record.OwnerID, &record.ClientID, &record.Scope, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	record.CreatedAt = time.Unix(createdAt, 0)
	record.ExpiresAt = time.Unix(expiresAt, 0)

	if now.After(record.ExpiresAt) {
		return nil, storage.ErrTokenNotFound
	}
	return &record, nil
}

// RevokeRefreshToken marks a token revoked and returns its record.
func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*storage.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL
		 RETURNING owner_id, client_id, scope, created_at, expires_at`,
		now.Unix(), tokenHash)

	record := storage.RefreshToken{TokenHash: tokenHash}
	var createdAt, expiresAt int64
	err := row.Scan(&record.OwnerID, &record.ClientID, &record.Scope, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}

	revokedAt := now
	record.RevokedAt = &revokedAt
	record.CreatedAt = time.Unix(createdAt, 0)
	record.ExpiresAt = time.Unix(expiresAt, 0)
	return &record, nil
}

// SaveConsent records approval for an owner/client pair (find-or-create).
func (s *Store) SaveConsent(ctx context.Context, consent *storage.Consent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO consents (owner_id, client_id, scope, granted_at) VALUES (?, ?, ?, ?)`,
		consent.OwnerID, consent.ClientID, consent.Scope, consent.GrantedAt.Unix())
	if err != nil {
		return fmt.Errorf("save consent: %w", err)
	}
	return nil
}

// HasConsent reports whether approval is recorded for the pair.
func (s *Store) HasConsent(ctx context.Context, ownerID, clientID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM consents WHERE owner_id = ? AND client_id = ?`,
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
		`DELETE FROM consents WHERE owner_id = ? AND client_id = ?`, ownerID, clientID)
	if err != nil {
		return fmt.Errorf("delete consent: %w", err)
	}
	return nil
}

// CreateUser persists a new resource owner.
func (s *Store) CreateUser(ctx context.Context, user *storage.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE email = ?`, user.Email).Scan(&one)
	if err == nil {
		return storage.ErrUserExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("query user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.PasswordHash, user.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return tx.Commit()
}

// GetUserByEmail retrieves an owner by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	return s.getUser(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?`, email)
}

// GetUserByID retrieves an owner by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*storage.User, error) {
	return s.getUser(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (s *Store) getUser(ctx context.Context, query, arg string) (*storage.User, error) {
	var user storage.User
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	return &user, nil
}
