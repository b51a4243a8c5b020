package server_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftsec/authcore/server"
)

func TestComputeCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B reference vector.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	require.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		server.ComputeCodeChallenge(verifier))
}

func TestComputeCodeChallengeShortVerifier(t *testing.T) {
	// Any verifier hashes deterministically; length is not this layer's
	// concern.
	c1 := server.ComputeCodeChallenge("verifier1")
	c2 := server.ComputeCodeChallenge("verifier1")
	c3 := server.ComputeCodeChallenge("verifier2")

	require.Equal(t, c1, c2)
	require.NotEqual(t, c1, c3)
	require.Len(t, c1, 43)
}
