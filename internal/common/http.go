package common

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the caller address from RemoteAddr. The router runs chi's
// RealIP first, so forwarded headers from the proxy are already applied.
// Addresses that do not parse are returned as-is.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	raw := strings.TrimSpace(r.RemoteAddr)
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr().Unmap().String()
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		return host
	}
	return raw
}

// CallerKey identifies the caller for rate limiting: the authenticated user
// when present, otherwise the client IP.
func CallerKey(r *http.Request) string {
	if userID, ok := UserID(r.Context()); ok && strings.TrimSpace(userID) != "" {
		return "user:" + userID
	}
	return "ip:" + ClientIP(r)
}
