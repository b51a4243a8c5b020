package authcore

// TokenResponse is the JSON body of a successful token endpoint response.
type TokenResponse struct {
	// AccessToken is the signed access token.
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`

	// RefreshToken is the raw refresh token. Each response carries a fresh
	// one; the previous token is no longer redeemable.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the space-separated scope string the grant was approved for.
	Scope string `json:"scope,omitempty"`
}

// ErrorResponse is the JSON body of an OAuth error response.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// ErrorDescription provides additional information.
	ErrorDescription string `json:"error_description,omitempty"`
}

// UserInfoResponse is the JSON body of the userinfo endpoint.
type UserInfoResponse struct {
	// ID is the resource owner's stable identifier.
	ID string `json:"id"`

	// Email is the owner's email address.
	Email string `json:"email,omitempty"`

	// Name is the owner's display name.
	Name string `json:"name,omitempty"`
}

// HealthResponse is the JSON body of the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}
