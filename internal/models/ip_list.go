package models

import (
	"strings"

	"github.com/Wikid82/sentinel/internal/logger"
	"github.com/Wikid82/sentinel/internal/util"
)

// CanonicalIPs canonicalizes every entry of an IP list, deduplicates it and
// drops entries that are not IP literals. It never returns nil.
func CanonicalIPs(list string, in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		if strings.TrimSpace(v) == "" {
			continue
		}
		ip, ok := util.CanonicalIP(v)
		if !ok {
			logger.Log().WithField("list", list).WithField("entry", util.SanitizeForLog(v)).
				Warn("sentinel: dropping invalid ip entry")
			continue
		}
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		out = append(out, ip)
	}
	return out
}

// containsIP compares by canonical form so entries that were never
// normalized still match.
func containsIP(list []string, ip string) bool {
	want, ok := util.CanonicalIP(ip)
	if !ok {
		want = strings.TrimSpace(ip)
	}
	for _, v := range list {
		if c, ok := util.CanonicalIP(v); ok {
			v = c
		}
		if v == want {
			return true
		}
	}
	return false
}
