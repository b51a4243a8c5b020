package security

import (
	"net/http/httptest"
	"testing"
)

func TestSetSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SetSecurityHeaders(w, "http://auth.example.com")

	want := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "no-referrer",
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}

	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS set for a plain HTTP issuer: %q", got)
	}
}

func TestSetSecurityHeadersHSTS(t *testing.T) {
	w := httptest.NewRecorder()
	SetSecurityHeaders(w, "https://auth.example.com")

	if got := w.Header().Get("Strict-Transport-Security"); got == "" {
		t.Error("HSTS missing for an HTTPS issuer")
	}
}
