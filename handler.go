// Package authcore is an OAuth 2.0 authorization server implementing the
// authorization code grant with mandatory PKCE (S256), single-use
// authorization codes, refresh token rotation, and token revocation with a
// consent cascade.
//
// The package provides the HTTP surface; the protocol engine lives in the
// server subpackage and the persistence backends in storage.
package authcore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/driftsec/authcore/instrumentation"
	"github.com/driftsec/authcore/security"
	"github.com/driftsec/authcore/server"
	"github.com/driftsec/authcore/storage"
)

// SessionCookieName is the cookie carrying the resource owner's login
// session.
const SessionCookieName = "authcore_session"

// Handler is the HTTP adapter for the authorization server. It owns request
// parsing, cookies, redirects, and response encoding; all protocol decisions
// are delegated to the engine.
type Handler struct {
	server      *server.Server
	logger      *slog.Logger
	rateLimiter *security.RateLimiter
	metrics     *instrumentation.Metrics
	trustProxy  bool
}

// NewHandler creates a new HTTP handler for the given engine.
func NewHandler(srv *server.Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		server: srv,
		logger: logger,
	}
}

// SetRateLimiter installs a per-IP rate limiter for all endpoints.
func (h *Handler) SetRateLimiter(rl *security.RateLimiter) {
	h.rateLimiter = rl
}

// SetInstrumentation installs metric instruments.
func (h *Handler) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst != nil {
		h.metrics = inst.Metrics()
	}
}

// SetTrustProxy enables X-Forwarded-For/X-Real-IP handling. Only enable
// behind a trusted reverse proxy.
func (h *Handler) SetTrustProxy(trust bool) {
	h.trustProxy = trust
}

// Routes returns the router with all endpoints and middleware registered.
func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.requestIDMiddleware)
	r.Use(h.securityHeadersMiddleware)
	r.Use(h.rateLimitMiddleware)
	r.Use(h.metricsMiddleware)

	r.HandleFunc("/authorize", h.ServeAuthorize).Methods(http.MethodGet)
	r.HandleFunc("/consent", h.ServeConsent).Methods(http.MethodPost)
	r.HandleFunc("/token", h.ServeToken).Methods(http.MethodPost)
	r.HandleFunc("/revoke", h.ServeRevoke).Methods(http.MethodPost)
	r.HandleFunc("/userinfo", h.ServeUserInfo).Methods(http.MethodGet)

	r.HandleFunc("/login", h.ServeLoginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", h.ServeLogin).Methods(http.MethodPost)
	r.HandleFunc("/register", h.ServeRegisterPage).Methods(http.MethodGet)
	r.HandleFunc("/register", h.ServeRegister).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.ServeLogout).Methods(http.MethodPost)

	r.HandleFunc("/healthz", h.ServeHealth).Methods(http.MethodGet)

	return r
}

// ==================== Middleware ====================

func (h *Handler) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := security.RequestIDFromRequest(r)
		w.Header().Set(security.RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(security.WithRequestID(r.Context(), requestID)))
	})
}

func (h *Handler) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		security.SetSecurityHeaders(w, h.server.Config.Issuer)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.rateLimiter != nil {
			clientIP := security.GetClientIP(r, h.trustProxy)
			if !h.rateLimiter.Allow(clientIP) {
				if h.server.Auditor != nil {
					h.server.Auditor.LogRateLimitExceeded(clientIP)
				}
				if h.metrics != nil {
					h.metrics.RateLimitExceeded.Add(r.Context(), 1)
				}
				h.writeError(w, ErrRateLimitExceeded("too many requests"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		h.metrics.RecordHTTPRequest(r.Context(), r.Method, route, recorder.status,
			float64(time.Since(start).Milliseconds()))
	})
}

// ==================== Authorization endpoint ====================

// ServeAuthorize handles GET /authorize. Invalid requests are rendered to
// the resource owner; the user agent is only ever redirected to a redirect
// URI that passed validation.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	req := authorizationRequestFromValues(r.URL.Query())

	client, err := h.server.ValidateAuthorizationRequest(req)
	if err != nil {
		h.renderAuthorizationError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordFlowEvent(r.Context(), h.metrics.AuthorizationRequests, req.ClientID)
	}

	identity := h.authenticate(r)
	if identity == nil {
		h.redirectToLogin(w, r)
		return
	}

	granted, err := h.server.HasConsent(r.Context(), identity.OwnerID, req.ClientID)
	if err != nil {
		h.logger.Error("Consent lookup failed", "error", err)
		h.renderAuthorizationError(w, &server.AuthorizationError{
			Code:        ErrorCodeServerError,
			Description: "internal error",
		})
		return
	}

	if granted {
		h.finishAuthorization(w, r, identity.OwnerID, server.ConsentDecisionAllow, req)
		return
	}

	h.renderConsentPage(w, client, req)
}

// ServeConsent handles POST /consent, the submission of the consent form.
func (h *Handler) ServeConsent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("malformed form body"))
		return
	}

	// The form replays the authorization request parameters; they are
	// validated again because the form post is attacker-reachable.
	req := authorizationRequestFromValues(r.PostForm)
	if _, err := h.server.ValidateAuthorizationRequest(req); err != nil {
		h.renderAuthorizationError(w, err)
		return
	}

	identity := h.authenticate(r)
	if identity == nil {
		h.redirectToLogin(w, r)
		return
	}

	h.finishAuthorization(w, r, identity.OwnerID, r.PostFormValue("decision"), req)
}

func (h *Handler) finishAuthorization(w http.ResponseWriter, r *http.Request, ownerID, decision string, req *server.AuthorizationRequest) {
	redirect, err := h.server.FinishAuthorization(r.Context(), ownerID, decision, req)
	if err != nil {
		h.logger.Error("Authorization failed", "error", err, "client_id", req.ClientID)
		h.renderAuthorizationError(w, &server.AuthorizationError{
			Code:        ErrorCodeServerError,
			Description: "internal error",
		})
		return
	}

	if decision == server.ConsentDecisionAllow && h.metrics != nil {
		h.metrics.RecordFlowEvent(r.Context(), h.metrics.CodeIssued, req.ClientID)
	}

	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *Handler) renderConsentPage(w http.ResponseWriter, client *server.Client, req *server.AuthorizationRequest) {
	name := client.Name
	if name == "" {
		name = client.ID
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := consentTmpl.Execute(w, consentPageData{
		ClientName:          name,
		ClientID:            req.ClientID,
		ResponseType:        req.ResponseType,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	})
	if err != nil {
		h.logger.Error("Failed to render consent page", "error", err)
	}
}

func (h *Handler) renderAuthorizationError(w http.ResponseWriter, err error) {
	code, description := ErrorCodeServerError, "internal error"
	status := http.StatusInternalServerError

	var authErr *server.AuthorizationError
	if errors.As(err, &authErr) {
		code, description = authErr.Code, authErr.Description
		status = http.StatusBadRequest
		if code == ErrorCodeServerError {
			status = http.StatusInternalServerError
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if execErr := errorPageTmpl.Execute(w, errorPageData{Code: code, Description: description}); execErr != nil {
		h.logger.Error("Failed to render error page", "error", execErr)
	}
}

func authorizationRequestFromValues(values url.Values) *server.AuthorizationRequest {
	return &server.AuthorizationRequest{
		ResponseType:        values.Get("response_type"),
		ClientID:            values.Get("client_id"),
		RedirectURI:         values.Get("redirect_uri"),
		Scope:               values.Get("scope"),
		State:               values.Get("state"),
		CodeChallenge:       values.Get("code_challenge"),
		CodeChallengeMethod: values.Get("code_challenge_method"),
	}
}

// ==================== Token endpoint ====================

// ServeToken handles POST /token with a form-encoded body per RFC 6749.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("malformed form body"))
		return
	}

	switch grantType := r.PostFormValue("grant_type"); grantType {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(w, r)
	case "refresh_token":
		h.handleRefreshTokenGrant(w, r)
	case "":
		h.writeError(w, ErrInvalidRequest("grant_type is required"))
	default:
		h.writeError(w, ErrUnsupportedGrantType(fmt.Sprintf("unsupported grant type: %s", grantType)))
	}
}

func (h *Handler) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	code := r.PostFormValue("code")
	clientID := r.PostFormValue("client_id")
	redirectURI := r.PostFormValue("redirect_uri")
	codeVerifier := r.PostFormValue("code_verifier")

	for name, value := range map[string]string{
		"code":          code,
		"client_id":     clientID,
		"redirect_uri":  redirectURI,
		"code_verifier": codeVerifier,
	} {
		if value == "" {
			h.writeError(w, ErrInvalidRequest(fmt.Sprintf("%s is required", name)))
			return
		}
	}

	pair, err := h.server.ExchangeAuthorizationCode(r.Context(), code, clientID, redirectURI, codeVerifier)
	if err != nil {
		h.writeGrantError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordFlowEvent(r.Context(), h.metrics.CodeExchanged, clientID)
	}
	h.writeTokenResponse(w, pair)
}

func (h *Handler) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	refreshToken := r.PostFormValue("refresh_token")
	if refreshToken == "" {
		h.writeError(w, ErrInvalidRequest("refresh_token is required"))
		return
	}

	pair, err := h.server.RefreshAccessToken(r.Context(), refreshToken)
	if err != nil {
		h.writeGrantError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordFlowEvent(r.Context(), h.metrics.TokenRefreshed, r.PostFormValue("client_id"))
	}
	h.writeTokenResponse(w, pair)
}

// writeGrantError maps engine errors to token endpoint responses. The
// invalid_grant description is deliberately uniform.
func (h *Handler) writeGrantError(w http.ResponseWriter, err error) {
	if errors.Is(err, server.ErrInvalidGrant) {
		h.writeError(w, ErrInvalidGrant("the provided grant is invalid or expired"))
		return
	}
	h.logger.Error("Token request failed", "error", err)
	h.writeError(w, ErrServerError("internal error"))
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, pair *server.TokenPair) {
	h.writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		RefreshToken: pair.RefreshToken,
		Scope:        pair.Scope,
	})
}

// ==================== Revocation endpoint ====================

// ServeRevoke handles POST /revoke per RFC 7009. The response does not
// reveal whether the token existed.
func (h *Handler) ServeRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("malformed form body"))
		return
	}

	token := r.PostFormValue("token")
	if token == "" {
		h.writeError(w, ErrInvalidRequest("token is required"))
		return
	}

	if err := h.server.Revoke(r.Context(), token); err != nil {
		h.logger.Error("Revocation failed", "error", err)
		h.writeError(w, ErrServerError("internal error"))
		return
	}

	if h.metrics != nil {
		h.metrics.TokenRevoked.Add(r.Context(), 1)
	}
	w.WriteHeader(http.StatusOK)
}

// ==================== Userinfo endpoint ====================

// ServeUserInfo handles GET /userinfo with a Bearer access token.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.extractBearerToken(r)
	if !ok {
		h.writeUnauthorized(w, "missing bearer token")
		return
	}

	info, err := h.server.ValidateAccessToken(raw)
	if err != nil {
		h.logger.Debug("Rejected access token", "error", err)
		h.writeUnauthorized(w, "the access token is invalid or expired")
		return
	}

	user, err := h.server.UserInfo(r.Context(), info)
	if errors.Is(err, storage.ErrUserNotFound) {
		// The token verified but its owner is gone, e.g. a deleted account.
		h.writeError(w, NewError(ErrorCodeInvalidRequest, "user not found", http.StatusNotFound))
		return
	}
	if err != nil {
		h.logger.Error("Userinfo lookup failed", "error", err)
		h.writeError(w, ErrServerError("internal error"))
		return
	}

	h.writeJSON(w, http.StatusOK, UserInfoResponse{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
	})
}

func (h *Handler) extractBearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}

func (h *Handler) writeUnauthorized(w http.ResponseWriter, description string) {
	oauthErr := ErrInvalidToken(description)
	w.Header().Set("WWW-Authenticate",
		fmt.Sprintf(`Bearer error="%s", error_description="%s"`, oauthErr.Code, oauthErr.Description))
	h.writeError(w, oauthErr)
}

// ==================== Login, registration, logout ====================

// ServeLoginPage handles GET /login.
func (h *Handler) ServeLoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderLoginPage(w, http.StatusOK, loginPageData{
		ReturnTo: safeReturnTo(r.URL.Query().Get("return_to")),
	})
}

// ServeLogin handles POST /login.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("malformed form body"))
		return
	}

	email := r.PostFormValue("email")
	returnTo := safeReturnTo(r.PostFormValue("return_to"))

	user, err := h.server.LoginUser(r.Context(), email, r.PostFormValue("password"))
	if errors.Is(err, server.ErrInvalidCredentials) {
		if h.metrics != nil {
			h.metrics.LoginFailed.Add(r.Context(), 1)
		}
		h.renderLoginPage(w, http.StatusUnauthorized, loginPageData{
			ReturnTo: returnTo,
			Email:    email,
			Error:    "Invalid email or password.",
		})
		return
	}
	if err != nil {
		h.logger.Error("Login failed", "error", err)
		h.writeError(w, ErrServerError("internal error"))
		return
	}

	h.startSession(w, r, user, returnTo)
}

// ServeRegisterPage handles GET /register.
func (h *Handler) ServeRegisterPage(w http.ResponseWriter, r *http.Request) {
	h.renderRegisterPage(w, http.StatusOK, registerPageData{
		ReturnTo: safeReturnTo(r.URL.Query().Get("return_to")),
	})
}

// ServeRegister handles POST /register.
func (h *Handler) ServeRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("malformed form body"))
		return
	}

	email := r.PostFormValue("email")
	name := r.PostFormValue("name")
	returnTo := safeReturnTo(r.PostFormValue("return_to"))

	user, err := h.server.RegisterUser(r.Context(), email, name, r.PostFormValue("password"))
	if errors.Is(err, storage.ErrUserExists) {
		h.renderRegisterPage(w, http.StatusConflict, registerPageData{
			ReturnTo: returnTo,
			Name:     name,
			Email:    email,
			Error:    "That email is already registered.",
		})
		return
	}
	if err != nil {
		h.logger.Error("Registration failed", "error", err)
		h.writeError(w, ErrServerError("internal error"))
		return
	}

	if h.metrics != nil {
		h.metrics.UserRegistered.Add(r.Context(), 1)
	}
	h.startSession(w, r, user, returnTo)
}

// ServeLogout handles POST /logout by clearing the session cookie.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cookieSecure(),
	})
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *storage.User, returnTo string) {
	session, err := h.server.IssueSession(user)
	if err != nil {
		h.logger.Error("Failed to issue session", "error", err)
		h.writeError(w, ErrServerError("internal error"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session,
		Path:     "/",
		MaxAge:   int(h.server.Config.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cookieSecure(),
	})

	if returnTo == "" {
		returnTo = "/"
	}
	http.Redirect(w, r, returnTo, http.StatusFound)
}

func (h *Handler) renderLoginPage(w http.ResponseWriter, status int, data loginPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := loginTmpl.Execute(w, data); err != nil {
		h.logger.Error("Failed to render login page", "error", err)
	}
}

func (h *Handler) renderRegisterPage(w http.ResponseWriter, status int, data registerPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := registerTmpl.Execute(w, data); err != nil {
		h.logger.Error("Failed to render register page", "error", err)
	}
}

// authenticate resolves the session cookie to an identity, or nil.
func (h *Handler) authenticate(r *http.Request) *server.Identity {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil
	}
	return h.server.Authenticate(cookie.Value)
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := "/login?return_to=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) cookieSecure() bool {
	u, err := url.Parse(h.server.Config.Issuer)
	return err == nil && u.Scheme == "https"
}

// safeReturnTo only allows same-site relative paths, preventing the login
// flow from acting as an open redirector.
func safeReturnTo(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return ""
	}
	return target
}

// ==================== Health endpoint ====================

// ServeHealth handles GET /healthz.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ==================== Response helpers ====================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, oauthErr *Error) {
	h.writeJSON(w, oauthErr.Status, ErrorResponse{
		Error:            oauthErr.Code,
		ErrorDescription: oauthErr.Description,
	})
}
