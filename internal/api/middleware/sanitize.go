package middleware

import (
	"net/http"
	"strings"

	"github.com/Wikid82/sentinel/internal/util"
)

const maxLoggedValue = 200

// Headers never written to logs. Client address headers are included since
// they are attacker controlled and already resolved by the engine.
var redactedHeaders = map[string]struct{}{
	"authorization":       {},
	"cookie":              {},
	"set-cookie":          {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"x-forwarded-for":     {},
	"x-real-ip":           {},
	"cf-connecting-ip":    {},
	"client-ip":           {},
}

// SanitizeHeaders returns a copy of h that is safe to log: sensitive values
// are redacted, the rest have control characters removed and are truncated.
func SanitizeHeaders(h http.Header) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, vals := range h {
		if _, ok := redactedHeaders[strings.ToLower(k)]; ok {
			out[k] = []string{"<redacted>"}
			continue
		}
		clean := make([]string, 0, len(vals))
		for _, v := range vals {
			clean = append(clean, util.Truncate(util.SanitizeForLog(v), maxLoggedValue))
		}
		out[k] = clean
	}
	return out
}

// SanitizePath drops the query string, strips control characters and
// truncates p for logging.
func SanitizePath(p string) string {
	if i := strings.IndexByte(p, '?'); i != -1 {
		p = p[:i]
	}
	return util.Truncate(util.SanitizeForLog(p), maxLoggedValue)
}
