package sentinel

import (
	"net"
	"net/http"
	"strings"

	"github.com/Wikid82/sentinel/internal/util"
)

// clientIPHeaders are consulted in order before the socket peer.
var clientIPHeaders = []string{
	"X-Real-IP",
	"X-Forwarded-For",
	"CF-Connecting-IP",
	"Client-IP",
}

const unknownIP = "0.0.0.0"

// ClientIP returns the best-effort client address for r. It never fails: when
// no candidate parses as an IP literal the raw peer address is returned, or
// 0.0.0.0 when there is none.
func ClientIP(r *http.Request) string {
	return resolveClientIP(r.Header, r.RemoteAddr)
}

func resolveClientIP(h http.Header, remoteAddr string) string {
	for _, name := range clientIPHeaders {
		if ip, ok := parseCandidate(h.Get(name)); ok {
			return ip
		}
	}

	peer := strings.TrimSpace(remoteAddr)
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if ip, ok := parseCandidate(peer); ok {
		return ip
	}
	if peer == "" {
		return unknownIP
	}
	return peer
}

// parseCandidate takes the first comma separated entry and returns it in
// canonical form if it is an IPv4 or IPv6 literal.
func parseCandidate(v string) (string, bool) {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return util.CanonicalIP(v)
}

// NormalizeIP validates an IP literal and returns its canonical form.
func NormalizeIP(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if strings.ContainsRune(v, ',') {
		return "", false
	}
	return parseCandidate(v)
}

// RequestDomain strips the port from a Host header value.
func RequestDomain(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
