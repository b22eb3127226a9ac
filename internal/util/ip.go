package util

import (
	"net/netip"
	"strings"
)

// CanonicalIP validates an IPv4 or IPv6 literal and returns its canonical
// text. IPv4-mapped IPv6 addresses are unwrapped; zoned addresses are rejected.
func CanonicalIP(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	addr, err := netip.ParseAddr(v)
	if err != nil || addr.Zone() != "" {
		return "", false
	}
	return addr.Unmap().String(), true
}
