package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the client IP address from a request. When trustProxy
// is set the X-Forwarded-For and X-Real-IP headers are consulted first;
// otherwise only the connection's remote address counts, since forwarding
// headers are client-controlled on direct connections.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := firstForwardedIP(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := r.Header.Get("X-Real-IP"); net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// firstForwardedIP returns the leftmost valid IP of an X-Forwarded-For
// header, which is the original client in the "client, proxy1, proxy2"
// format proxies append to.
func firstForwardedIP(xff string) string {
	if xff == "" {
		return ""
	}
	first := strings.TrimSpace(strings.Split(xff, ",")[0])
	if net.ParseIP(first) != nil {
		return first
	}
	return ""
}
