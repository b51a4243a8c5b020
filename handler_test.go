package authcore_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftsec/authcore"
	"github.com/driftsec/authcore/internal/testutil"
	"github.com/driftsec/authcore/security"
	"github.com/driftsec/authcore/server"
	"github.com/driftsec/authcore/storage/memory"
)

const (
	testClientID    = "web-app"
	testRedirectURI = "https://app.example.com/callback"
	testVerifier    = "verifier1"
)

type testEnv struct {
	ts     *httptest.Server
	client *http.Client
	engine *server.Server
	clock  *testutil.MockTime
}

// newTestEnv stands up the full HTTP surface on an in-memory store, with a
// cookie-keeping client that does not follow redirects.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewWithInterval(time.Hour)
	t.Cleanup(store.Stop)

	engine, err := server.New(store, store, store, store, &server.Config{
		Issuer: "http://auth.test",
		Clients: []server.Client{
			{ID: testClientID, Name: "Web App", RedirectURI: testRedirectURI},
		},
		SessionSigningKey:     testutil.SigningKey("session"),
		AccessTokenSigningKey: testutil.SigningKey("access"),
	}, nil)
	require.NoError(t, err)

	clock := testutil.NewMockTime(time.Now())
	engine.SetClock(clock.Now)

	handler := authcore.NewHandler(engine, nil)
	ts := httptest.NewServer(handler.Routes())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testEnv{
		ts:     ts,
		engine: engine,
		clock:  clock,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := e.client.PostForm(e.ts.URL+path, form)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.client.Get(e.ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// register creates an owner account and leaves its session cookie in the jar.
func (e *testEnv) register(t *testing.T, email string) {
	t.Helper()
	resp := e.postForm(t, "/register", url.Values{
		"email":    {email},
		"name":     {"Alice"},
		"password": {"hunter22"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
}

func authorizeQuery() url.Values {
	return url.Values{
		"response_type":         {"code"},
		"client_id":             {testClientID},
		"redirect_uri":          {testRedirectURI},
		"scope":                 {"profile"},
		"state":                 {"xyz"},
		"code_challenge":        {testutil.CodeChallenge(testVerifier)},
		"code_challenge_method": {"S256"},
	}
}

// obtainCode walks register, authorize, and consent, returning the code
// from the final redirect.
func (e *testEnv) obtainCode(t *testing.T) string {
	t.Helper()

	resp := e.get(t, "/authorize?"+authorizeQuery().Encode())
	require.Equal(t, http.StatusOK, resp.StatusCode, "expected the consent page")

	form := authorizeQuery()
	form.Set("decision", "allow")
	consent := e.postForm(t, "/consent", form)
	require.Equal(t, http.StatusFound, consent.StatusCode)

	location, err := url.Parse(consent.Header.Get("Location"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(location.String(), testRedirectURI))
	require.Equal(t, "xyz", location.Query().Get("state"))

	code := location.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestFullAuthorizationFlow(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com")

	code := env.obtainCode(t)

	// Exchange the code.
	resp := env.postForm(t, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {testClientID},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {testVerifier},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := decodeJSON[authcore.TokenResponse](t, resp)
	require.NotEmpty(t, token.AccessToken)
	require.NotEmpty(t, token.RefreshToken)
	require.Equal(t, "Bearer", token.TokenType)
	require.Equal(t, int64(3600), token.ExpiresIn)

	// The access token reaches userinfo.
	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/userinfo", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	userResp, err := env.client.Do(req)
	require.NoError(t, err)
	defer userResp.Body.Close()
	require.Equal(t, http.StatusOK, userResp.StatusCode)
	info := decodeJSON[authcore.UserInfoResponse](t, userResp)
	require.Equal(t, "alice@example.com", info.Email)
	require.NotEmpty(t, info.ID)

	// Replaying the code fails.
	replay := env.postForm(t, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {testClientID},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {testVerifier},
	})
	require.Equal(t, http.StatusBadRequest, replay.StatusCode)
	replayErr := decodeJSON[authcore.ErrorResponse](t, replay)
	require.Equal(t, "invalid_grant", replayErr.Error)
}

func TestRefreshRotationOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com")
	code := env.obtainCode(t)

	resp := env.postForm(t, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {testClientID},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {testVerifier},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decodeJSON[authcore.TokenResponse](t, resp)

	refreshResp := env.postForm(t, "/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
	})
	require.Equal(t, http.StatusOK, refreshResp.StatusCode)
	second := decodeJSON[authcore.TokenResponse](t, refreshResp)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The rotated-out token no longer works.
	replay := env.postForm(t, "/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
	})
	require.Equal(t, http.StatusBadRequest, replay.StatusCode)
}

func TestRevocationCascadeOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com")
	code := env.obtainCode(t)

	resp := env.postForm(t, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {testClientID},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {testVerifier},
	})
	token := decodeJSON[authcore.TokenResponse](t, resp)

	revoke := env.postForm(t, "/revoke", url.Values{"token": {token.RefreshToken}})
	require.Equal(t, http.StatusOK, revoke.StatusCode)

	// The token no longer refreshes.
	refresh := env.postForm(t, "/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {token.RefreshToken},
	})
	require.Equal(t, http.StatusBadRequest, refresh.StatusCode)

	// Consent was withdrawn, so the next authorization prompts again
	// instead of auto-approving.
	again := env.get(t, "/authorize?"+authorizeQuery().Encode())
	require.Equal(t, http.StatusOK, again.StatusCode)
	body, err := io.ReadAll(again.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "Allow")
}

func TestAuthorizeRemembersConsent(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com")
	_ = env.obtainCode(t)

	// Second authorization skips the consent page entirely.
	resp := env.get(t, "/authorize?"+authorizeQuery().Encode())
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.NotEmpty(t, location.Query().Get("code"))
}

func TestAuthorizeRejectsPlainPKCE(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com")

	q := authorizeQuery()
	q.Set("code_challenge", testVerifier)
	q.Set("code_challenge_method", "plain")

	resp := env.get(t, "/authorize?"+q.Encode())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthorizeRejectsUnknownClient(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com")

	q := authorizeQuery()
	q.Set("client_id", "nobody")

	resp := env.get(t, "/authorize?"+q.Encode())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthorizeRedirectsAnonymousToLogin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/authorize?"+authorizeQuery().Encode())
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, "/login?return_to="))
}

func TestConsentDenyRedirectsWithError(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com")

	form := authorizeQuery()
	form.Set("decision", "deny")
	resp := env.postForm(t, "/consent", form)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "access_denied", location.Query().Get("error"))
	require.Equal(t, "xyz", location.Query().Get("state"))
}

func TestTokenEndpointValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name      string
		form      url.Values
		wantError string
	}{
		{
			name:      "missing grant type",
			form:      url.Values{},
			wantError: "invalid_request",
		},
		{
			name:      "unsupported grant type",
			form:      url.Values{"grant_type": {"password"}},
			wantError: "unsupported_grant_type",
		},
		{
			name: "missing code",
			form: url.Values{
				"grant_type":    {"authorization_code"},
				"client_id":     {testClientID},
				"redirect_uri":  {testRedirectURI},
				"code_verifier": {testVerifier},
			},
			wantError: "invalid_request",
		},
		{
			name:      "missing refresh token",
			form:      url.Values{"grant_type": {"refresh_token"}},
			wantError: "invalid_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.postForm(t, "/token", tt.form)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decodeJSON[authcore.ErrorResponse](t, resp)
			require.Equal(t, tt.wantError, body.Error)
		})
	}
}

func TestRevokeUnknownTokenReturnsOK(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postForm(t, "/revoke", url.Values{"token": {"never-issued"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRevokeRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postForm(t, "/revoke", url.Values{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUserInfoRequiresBearer(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/userinfo")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com")

	resp := env.postForm(t, "/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"wrong"},
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com")

	resp := env.postForm(t, "/register", url.Values{
		"email":    {"alice@example.com"},
		"password": {"other"},
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	require.Contains(t, resp.Header.Get("Cache-Control"), "no-store")
	require.NotEmpty(t, resp.Header.Get(security.RequestIDHeader))
}

func TestRateLimiting(t *testing.T) {
	store := memory.NewWithInterval(time.Hour)
	t.Cleanup(store.Stop)

	engine, err := server.New(store, store, store, store, &server.Config{
		Issuer:                "http://auth.test",
		Clients:               []server.Client{{ID: testClientID, RedirectURI: testRedirectURI}},
		SessionSigningKey:     testutil.SigningKey("session"),
		AccessTokenSigningKey: testutil.SigningKey("access"),
	}, nil)
	require.NoError(t, err)

	limiter := security.NewRateLimiter(1, 1, nil)
	t.Cleanup(limiter.Stop)

	handler := authcore.NewHandler(engine, nil)
	handler.SetRateLimiter(limiter)

	ts := httptest.NewServer(handler.Routes())
	t.Cleanup(ts.Close)

	first, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer second.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}
