package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/driftsec/authcore/storage"
)

// ErrInvalidCredentials is returned when login fails. Unknown email and wrong
// password are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Identity is an authenticated resource owner, resolved from a login session.
type Identity struct {
	OwnerID string
	Email   string
	Name    string
}

type sessionClaims struct {
	jwt.RegisteredClaims

	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// IssueSession mints a signed session token for a logged-in owner.
func (s *Server) IssueSession(user *storage.User) (string, error) {
	now := s.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Config.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.Config.SessionTTL)),
		},
		Email: user.Email,
		Name:  user.Name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.Config.SessionSigningKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Authenticate resolves a session credential to an identity. A missing,
// malformed, expired, or forged credential yields a nil identity and no
// error: an unauthenticated request is a normal state, not a failure.
func (s *Server) Authenticate(credential string) *Identity {
	if credential == "" {
		return nil
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(credential, &claims,
		func(t *jwt.Token) (any, error) { return s.Config.SessionSigningKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.Subject == "" {
		s.Logger.Debug("Rejected session credential", "reason", err)
		return nil
	}

	return &Identity{
		OwnerID: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
	}
}

// RegisterUser creates a resource owner with a bcrypt-hashed password and
// returns the stored record. Returns storage.ErrUserExists if the email is
// taken.
func (s *Server) RegisterUser(ctx context.Context, email, name, password string) (*storage.User, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &storage.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.Logger.Info("Registered user", "user_id", user.ID)
	return user, nil
}

// LoginUser verifies an owner's credentials. Returns ErrInvalidCredentials
// on any mismatch.
func (s *Server) LoginUser(ctx context.Context, email, password string) (*storage.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrUserNotFound) {
		if s.Auditor != nil {
			s.Auditor.LogLoginFailure(email, "unknown_email")
		}
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogLoginFailure(email, "bad_password")
		}
		return nil, ErrInvalidCredentials
	}

	if s.Auditor != nil {
		s.Auditor.LogLoginSuccess(user.ID)
	}
	return user, nil
}

// UserInfo returns the profile of the owner an access token was issued for.
func (s *Server) UserInfo(ctx context.Context, info *AccessTokenInfo) (*storage.User, error) {
	user, err := s.users.GetUserByID(ctx, info.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("look up token owner: %w", err)
	}
	return user, nil
}
