// Package memory provides an in-memory implementation of all storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/driftsec/authcore/storage"
)

// Store is an in-memory implementation of storage.Store. All compound
// operations (consume, revoke) run under a single mutex, which gives the
// per-key atomicity the protocol engine requires.
type Store struct {
	mu sync.RWMutex

	codes         map[string]*storage.AuthorizationCode // code -> record
	refreshTokens map[string]*storage.RefreshToken      // token hash -> record
	consents      map[consentKey]*storage.Consent
	users         map[string]*storage.User // user ID -> record
	usersByEmail  map[string]string        // email -> user ID

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

type consentKey struct {
	ownerID  string
	clientID string
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store with the default cleanup interval
// (1 minute).
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup
// interval. If cleanupInterval is 0 or negative, the default of 1 minute is
// used.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		codes:           make(map[string]*storage.AuthorizationCode),
		refreshTokens:   make(map[string]*storage.RefreshToken),
		consents:        make(map[consentKey]*storage.Consent),
		users:           make(map[string]*storage.User),
		usersByEmail:    make(map[string]string),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// Stop gracefully stops the cleanup goroutine.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// SaveAuthorizationCode persists a newly issued code.
func (s *Store) SaveAuthorizationCode(_ context.Context, code *storage.AuthorizationCode) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *code
	s.codes[code.Code] = &cp
	return nil
}

// ConsumeAuthorizationCode atomically validates and deletes a code. The
// lookup, expiry check, and delete all happen under the write lock, so of two
// concurrent calls with the same code exactly one succeeds.
func (s *Store) ConsumeAuthorizationCode(_ context.Context, code string, now time.Time) (*storage.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.codes[code]
	if !ok {
		return nil, storage.ErrCodeNotFound
	}

	delete(s.codes, code)

	if now.After(record.ExpiresAt) {
		return nil, storage.ErrCodeNotFound
	}

	cp := *record
	return &cp, nil
}

// SaveRefreshToken persists a refresh token record keyed by hash.
func (s *Store) SaveRefreshToken(_ context.Context, token *storage.RefreshToken) error {
	if token == nil || token.TokenHash == "" {
		return fmt.Errorf("invalid refresh token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *token
	s.refreshTokens[token.TokenHash] = &cp
	return nil
}

// ConsumeRefreshToken atomically validates and deletes a refresh token by
// hash. Revoked tokens are left in place so a later reuse attempt still
// observes the revocation.
func (s *Store) ConsumeRefreshToken(_ context.Context, tokenHash string, now time.Time) (*storage.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.refreshTokens[tokenHash]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	if record.Revoked() {
		return nil, storage.ErrTokenNotFound
	}
	if now.After(record.ExpiresAt) {
		delete(s.refreshTokens, tokenHash)
		return nil, storage.ErrTokenNotFound
	}

	delete(s.refreshTokens, tokenHash)

	cp := *record
	return &cp, nil
}

// RevokeRefreshToken marks a token revoked and returns its record.
func (s *Store) RevokeRefreshToken(_ context.Context, tokenHash string, now time.Time) (*storage.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.refreshTokens[tokenHash]
	if !ok || record.Revoked() {
		return nil, storage.ErrTokenNotFound
	}

	revokedAt := now
	record.RevokedAt = &revokedAt

	cp := *record
	return &cp, nil
}

// SaveConsent records approval for an owner/client pair (find-or-create).
func (s *Store) SaveConsent(_ context.Context, consent *storage.Consent) error {
	if consent == nil || consent.OwnerID == "" || consent.ClientID == "" {
		return fmt.Errorf("invalid consent")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := consentKey{ownerID: consent.OwnerID, clientID: consent.ClientID}
	if _, ok := s.consents[key]; ok {
		return nil
	}

	cp := *consent
	s.consents[key] = &cp
	return nil
}

// HasConsent reports whether approval is recorded for the pair.
func (s *Store) HasConsent(_ context.Context, ownerID, clientID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.consents[consentKey{ownerID: ownerID, clientID: clientID}]
	return ok, nil
}

// DeleteConsent removes the approval for the pair.
func (s *Store) DeleteConsent(_ context.Context, ownerID, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.consents, consentKey{ownerID: ownerID, clientID: clientID})
	return nil
}

// CreateUser persists a new resource owner.
func (s *Store) CreateUser(_ context.Context, user *storage.User) error {
	if user == nil || user.ID == "" || user.Email == "" {
		return fmt.Errorf("invalid user")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByEmail[user.Email]; ok {
		return storage.ErrUserExists
	}

	cp := *user
	s.users[user.ID] = &cp
	s.usersByEmail[user.Email] = user.ID
	return nil
}

// GetUserByEmail retrieves an owner by email.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	cp := *s.users[id]
	return &cp, nil
}

// GetUserByID retrieves an owner by ID.
func (s *Store) GetUserByID(_ context.Context, id string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	cp := *user
	return &cp, nil
}

// cleanupLoop periodically removes expired codes and tokens so abandoned
// flows do not accumulate.
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupExpired(time.Now())
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanupExpired removes expired authorization codes and refresh tokens.
func (s *Store) cleanupExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removedCodes := 0
	for code, record := range s.codes {
		if now.After(record.ExpiresAt) {
			delete(s.codes, code)
			removedCodes++
		}
	}

	removedTokens := 0
	for hash, record := range s.refreshTokens {
		if now.After(record.ExpiresAt) {
			delete(s.refreshTokens, hash)
			removedTokens++
		}
	}

	if removedCodes > 0 || removedTokens > 0 {
		s.logger.Debug("Cleaned up expired records",
			"codes_removed", removedCodes,
			"refresh_tokens_removed", removedTokens)
	}
}
