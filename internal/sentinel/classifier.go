package sentinel

import (
	"strings"

	"github.com/Wikid82/sentinel/internal/models"
)

// BotProbeCategory is the one category whose signatures are also matched
// against the user-agent.
const BotProbeCategory = "bot_probe"

// Match is a classification hit.
type Match struct {
	Category  string
	Signature string
}

// Classify returns the first signature hit for target and userAgent. Categories
// are tried in catalog order and signatures in list order; matching is a
// case-insensitive substring test with no pattern syntax.
func Classify(target, userAgent string, catalog models.ThreatCatalog) (Match, bool) {
	if target == "" {
		return Match{}, false
	}
	t := strings.ToLower(target)
	ua := strings.ToLower(userAgent)

	for _, cat := range catalog {
		for _, sig := range cat.Signatures {
			if sig == "" {
				continue
			}
			needle := strings.ToLower(sig)
			if strings.Contains(t, needle) {
				return Match{Category: cat.Name, Signature: sig}, true
			}
			if cat.Name == BotProbeCategory && ua != "" && strings.Contains(ua, needle) {
				return Match{Category: cat.Name, Signature: sig}, true
			}
		}
	}
	return Match{}, false
}
