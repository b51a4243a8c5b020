package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftsec/authcore/storage"
	"github.com/driftsec/authcore/storage/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "authcore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// Times are stored at second precision, so the fixtures use truncated values.
func testNow() time.Time {
	return time.Now().Truncate(time.Second)
}

func TestPing(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Ping(context.Background()))
}

func TestSchemaIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "authcore.db")

	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening the same file must not fail on existing tables.
	s, err = sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestAuthorizationCodeLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := testNow()

	code := &storage.AuthorizationCode{
		Code:          "code-1",
		OwnerID:       "user-1",
		ClientID:      "client-1",
		RedirectURI:   "https://app.example.com/cb",
		Scope:         "profile",
		CodeChallenge: "challenge",
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Minute),
	}
	require.NoError(t, s.SaveAuthorizationCode(ctx, code))

	record, err := s.ConsumeAuthorizationCode(ctx, "code-1", now)
	require.NoError(t, err)
	require.Equal(t, "user-1", record.OwnerID)
	require.Equal(t, "challenge", record.CodeChallenge)
	require.True(t, record.ExpiresAt.Equal(now.Add(time.Minute)))

	_, err = s.ConsumeAuthorizationCode(ctx, "code-1", now)
	require.ErrorIs(t, err, storage.ErrCodeNotFound)
}

func TestAuthorizationCodeExpired(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := testNow()

	require.NoError(t, s.SaveAuthorizationCode(ctx, &storage.AuthorizationCode{
		Code:      "code-1",
		OwnerID:   "user-1",
		ClientID:  "client-1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}))

	_, err := s.ConsumeAuthorizationCode(ctx, "code-1", now.Add(2*time.Minute))
	require.ErrorIs(t, err, storage.ErrCodeNotFound)

	_, err = s.ConsumeAuthorizationCode(ctx, "code-1", now)
	require.ErrorIs(t, err, storage.ErrCodeNotFound)
}

func TestAuthorizationCodeConcurrent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := testNow()

	require.NoError(t, s.SaveAuthorizationCode(ctx, &storage.AuthorizationCode{
		Code:      "code-1",
		OwnerID:   "user-1",
		ClientID:  "client-1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}))

	const attempts = 16
	var wg sync.WaitGroup
	successes := make(chan struct{}, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConsumeAuthorizationCode(ctx, "code-1", now); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	require.Len(t, successes, 1)
}

func TestRefreshTokenLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := testNow()

	token := &storage.RefreshToken{
		TokenHash: "hash-1",
		OwnerID:   "user-1",
		ClientID:  "client-1",
		Scope:     "profile",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, s.SaveRefreshToken(ctx, token))

	record, err := s.ConsumeRefreshToken(ctx, "hash-1", now)
	require.NoError(t, err)
	require.Equal(t, "user-1", record.OwnerID)

	_, err = s.ConsumeRefreshToken(ctx, "hash-1", now)
	require.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestRefreshTokenRevocation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := testNow()

	require.NoError(t, s.SaveRefreshToken(ctx, &storage.RefreshToken{
		TokenHash: "hash-1",
		OwnerID:   "user-1",
		ClientID:  "client-1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}))

	record, err := s.RevokeRefreshToken(ctx, "hash-1", now)
	require.NoError(t, err)
	require.True(t, record.Revoked())
	require.Equal(t, "user-1", record.OwnerID)

	_, err = s.ConsumeRefreshToken(ctx, "hash-1", now)
	require.ErrorIs(t, err, storage.ErrTokenNotFound)

	_, err = s.RevokeRefreshToken(ctx, "hash-1", now)
	require.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestConsentLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := testNow()

	require.NoError(t, s.SaveConsent(ctx, &storage.Consent{
		OwnerID: "user-1", ClientID: "client-1", Scope: "profile", GrantedAt: now,
	}))
	require.NoError(t, s.SaveConsent(ctx, &storage.Consent{
		OwnerID: "user-1", ClientID: "client-1", Scope: "email", GrantedAt: now.Add(time.Hour),
	}))

	granted, err := s.HasConsent(ctx, "user-1", "client-1")
	require.NoError(t, err)
	require.True(t, granted)

	require.NoError(t, s.DeleteConsent(ctx, "user-1", "client-1"))

	granted, err = s.HasConsent(ctx, "user-1", "client-1")
	require.NoError(t, err)
	require.False(t, granted)
}

func TestUserLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &storage.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		Name:         "Alice",
		PasswordHash: "x",
		CreatedAt:    testNow(),
	}))

	require.ErrorIs(t, s.CreateUser(ctx, &storage.User{
		ID:        "user-2",
		Email:     "alice@example.com",
		CreatedAt: testNow(),
	}), storage.ErrUserExists)

	user, err := s.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, "user-1", user.ID)

	_, err = s.GetUserByID(ctx, "nobody")
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}
