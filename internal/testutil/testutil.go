// Package testutil provides shared helpers for the authorization server
// tests: a controllable clock, deterministic secret sources, and PKCE pairs.
package testutil

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// MockTime is a controllable time source for deterministic tests.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a mock time source starting at t.
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time.
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by d.
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to t.
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// SequentialSecrets returns a secret source producing "prefix-1",
// "prefix-2", and so on. Safe for concurrent use.
func SequentialSecrets(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// CodeChallenge derives the S256 challenge for a verifier, mirroring what a
// client performs before the authorization request.
func CodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// SigningKey returns a 32-byte key derived from a label, for test configs.
func SigningKey(label string) []byte {
	sum := sha256.Sum256([]byte(label))
	return sum[:]
}
