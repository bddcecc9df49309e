package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the originating client address, trusting proxy headers
// before falling back to the socket peer. Used for session records and the
// login rate limiter key.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		if first := firstForwardedHop(forwarded); first != "" {
			return first
		}
		return forwarded
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// firstForwardedHop picks the leftmost entry of an X-Forwarded-For chain,
// which is the client as seen by the outermost proxy.
func firstForwardedHop(forwarded string) string {
	hop, _, _ := strings.Cut(forwarded, ",")
	return strings.TrimSpace(hop)
}
