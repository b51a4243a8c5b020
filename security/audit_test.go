package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newCapturedAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewAuditor(logger, enabled), &buf
}

func TestAuditorHashesUserID(t *testing.T) {
	auditor, buf := newCapturedAuditor(true)

	auditor.LogTokenIssued("user-123", "client-1")

	out := buf.String()
	if strings.Contains(out, "user-123") {
		t.Errorf("audit log leaked the raw user ID: %s", out)
	}
	if !strings.Contains(out, EventTokenIssued) {
		t.Errorf("expected event type %q in output: %s", EventTokenIssued, out)
	}
	if !strings.Contains(out, "client-1") {
		t.Errorf("expected client ID in output: %s", out)
	}
}

func TestAuditorDisabled(t *testing.T) {
	auditor, buf := newCapturedAuditor(false)

	auditor.LogAuthFailure("user-123", "client-1", "bad_code")
	auditor.LogRateLimitExceeded("10.0.0.1")

	if buf.Len() != 0 {
		t.Errorf("disabled auditor wrote output: %s", buf.String())
	}
}

func TestAuditorLoginFailureHashesEmail(t *testing.T) {
	auditor, buf := newCapturedAuditor(true)

	auditor.LogLoginFailure("alice@example.com", "bad_password")

	out := buf.String()
	if strings.Contains(out, "alice@example.com") {
		t.Errorf("audit log leaked the email: %s", out)
	}
	if !strings.Contains(out, "bad_password") {
		t.Errorf("expected failure reason in output: %s", out)
	}
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want <empty>", got)
	}

	a := hashForLogging("user-1")
	b := hashForLogging("user-1")
	c := hashForLogging("user-2")

	if a != b {
		t.Errorf("hashing is not deterministic: %q != %q", a, b)
	}
	if a == c {
		t.Errorf("distinct inputs collided: %q", a)
	}
	if len(a) != 16 {
		t.Errorf("hash length = %d, want 16", len(a))
	}
}
