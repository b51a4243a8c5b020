package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// CodeChallengeMethodS256 is the only supported PKCE transformation.
// The "plain" method is rejected at the authorization endpoint.
const CodeChallengeMethodS256 = "S256"

// ComputeCodeChallenge derives the S256 code challenge for a verifier:
// base64url (no padding) of the SHA-256 digest of the ASCII verifier.
func ComputeCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// verifyCodeChallenge reports whether the verifier matches the stored
// challenge. The comparison is constant-time so redemption attempts cannot
// probe the challenge byte by byte.
func verifyCodeChallenge(challenge, verifier string) bool {
	computed := ComputeCodeChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
