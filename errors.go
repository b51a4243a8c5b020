package authcore

import (
	"fmt"
	"net/http"
)

// OAuth error codes this package writes on the wire. Codes that only appear
// in authorization redirects and error pages (access_denied,
// unsupported_response_type) live in the server package.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeServerError          = "server_error"
	ErrorCodeRateLimitExceeded    = "rate_limit_exceeded"
)

// Error represents an OAuth 2.0 error response.
type Error struct {
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError creates a new OAuth error.
func NewError(code, description string, status int) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common OAuth errors as reusable constructors
var (
	// ErrInvalidRequest indicates the request is malformed or missing
	// required parameters.
	ErrInvalidRequest = func(desc string) *Error {
		return NewError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidGrant indicates the authorization code or refresh token is
	// invalid, expired, or bound to different request parameters. The
	// description stays generic; the precise cause is only logged.
	ErrInvalidGrant = func(desc string) *Error {
		return NewError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
	}

	// ErrInvalidToken indicates the access token is missing, invalid, or
	// expired.
	ErrInvalidToken = func(desc string) *Error {
		return NewError(ErrorCodeInvalidToken, desc, http.StatusUnauthorized)
	}

	// ErrUnsupportedGrantType indicates the grant type is not supported.
	ErrUnsupportedGrantType = func(desc string) *Error {
		return NewError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
	}

	// ErrServerError indicates an internal failure unrelated to the
	// protocol state of the request.
	ErrServerError = func(desc string) *Error {
		return NewError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}

	// ErrRateLimitExceeded indicates the caller exhausted its request
	// budget.
	ErrRateLimitExceeded = func(desc string) *Error {
		return NewError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
	}
)
