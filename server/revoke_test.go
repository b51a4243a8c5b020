package server_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftsec/authcore/server"
)

func TestRevokeDestroysTokenAndConsent(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	code := issueCode(t, srv, newAuthRequest())
	pair, err := srv.ExchangeAuthorizationCode(ctx, code, testClientID, testRedirectURI, testVerifier)
	require.NoError(t, err)

	require.NoError(t, srv.Revoke(ctx, pair.RefreshToken))

	// The token no longer refreshes.
	_, err = srv.RefreshAccessToken(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, server.ErrInvalidGrant)

	// The cascade withdrew the consent, so the next authorization request
	// would prompt again.
	granted, err := store.HasConsent(ctx, testOwnerID, testClientID)
	require.NoError(t, err)
	require.False(t, granted)
}

func TestRevokeUnknownTokenSucceeds(t *testing.T) {
	srv, _, _ := newTestServer(t)

	require.NoError(t, srv.Revoke(context.Background(), "never-issued"))
}

func TestRevokeIsIdempotent(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	code := issueCode(t, srv, newAuthRequest())
	pair, err := srv.ExchangeAuthorizationCode(ctx, code, testClientID, testRedirectURI, testVerifier)
	require.NoError(t, err)

	require.NoError(t, srv.Revoke(ctx, pair.RefreshToken))
	require.NoError(t, srv.Revoke(ctx, pair.RefreshToken))
}

func TestRevokeDoesNotAffectOtherGrants(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	first := issueCode(t, srv, newAuthRequest())
	firstPair, err := srv.ExchangeAuthorizationCode(ctx, first, testClientID, testRedirectURI, testVerifier)
	require.NoError(t, err)

	second := issueCode(t, srv, newAuthRequest())
	secondPair, err := srv.ExchangeAuthorizationCode(ctx, second, testClientID, testRedirectURI, testVerifier)
	require.NoError(t, err)

	require.NoError(t, srv.Revoke(ctx, firstPair.RefreshToken))

	_, err = srv.RefreshAccessToken(ctx, secondPair.RefreshToken)
	require.NoError(t, err)
}
