package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/Wikid82/sentinel/internal/models"
	"github.com/Wikid82/sentinel/internal/sentinel"
	"github.com/Wikid82/sentinel/internal/store"
)

// seedRequests are replayed through the engine classifier to build a
// realistic event log for local development.
var seedRequests = []struct {
	ip, method, uri, ua string
}{
	{"203.0.113.10", "GET", "/wp-login.php", "Mozilla/5.0"},
	{"203.0.113.10", "POST", "/xmlrpc.php", "Mozilla/5.0"},
	{"203.0.113.11", "GET", "/.env", "curl/8.4.0"},
	{"198.51.100.20", "GET", "/products?id=1 UNION SELECT password FROM users", "sqlmap/1.7"},
	{"198.51.100.21", "GET", "/search?q=<script>alert(1)</script>", "Mozilla/5.0"},
	{"198.51.100.22", "GET", "/download?file=../../etc/passwd", "python-requests/2.31"},
	{"192.0.2.30", "GET", "/", "masscan/1.3"},
	{"192.0.2.31", "GET", "/phpmyadmin/index.php", "zgrab/0.x"},
}

func main() {
	dir := filepath.Join("data", "sentinel")
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	stores, err := store.Open(dir)
	if err != nil {
		log.Fatal("Failed to open stores:", err)
	}
	cfg, err := stores.Config.Load()
	if err != nil && !errors.Is(err, store.ErrDefaultsApplied) {
		log.Fatal("Failed to load config:", err)
	}

	now := time.Now().UTC()
	seeded := 0
	for i, r := range seedRequests {
		m, ok := sentinel.Classify(r.uri, r.ua, cfg.ThreatCategories)
		if !ok {
			continue
		}
		ev := models.ThreatEvent{
			ID:             sentinel.NewEventID(),
			SiteID:         cfg.SiteID,
			Timestamp:      now.Add(time.Duration(i-len(seedRequests)) * time.Minute),
			ThreatCategory: m.Category,
			MatchedPattern: m.Signature,
			Confidence:     models.ConfidenceMedium,
			Source:         models.EventSourceAuto,
			IPAddress:      r.ip,
			UserAgent:      r.ua,
			RequestURL:     r.uri,
			RequestMethod:  r.method,
			Domain:         "localhost",
		}
		if err := stores.Events.Append(ev); err != nil {
			log.Fatal("Failed to append event:", err)
		}
		seeded++
	}

	fmt.Printf("✓ Seeded %d threat events into %s\n", seeded, stores.Events.Path())
	fmt.Printf("✓ Event log now holds %d events\n", stores.Events.Len())
}
