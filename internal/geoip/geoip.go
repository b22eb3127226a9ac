// Package geoip enriches threat events with a country code from a local
// MaxMind database. Lookups never touch the network.
package geoip

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Resolver answers country lookups. A nil *Resolver is valid and returns "".
type Resolver struct {
	mu    sync.RWMutex
	db    *geoip2.Reader
	cache map[string]string
}

// maxCacheEntries bounds the per-IP cache; it is reset when full.
const maxCacheEntries = 10000

// Open loads a GeoLite2/GeoIP2 Country (or City) database from path.
func Open(path string) (*Resolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &Resolver{db: db, cache: make(map[string]string)}, nil
}

// Country returns the ISO 3166-1 alpha-2 code for ip, or "" if unknown.
func (r *Resolver) Country(ip string) string {
	if r == nil || r.db == nil {
		return ""
	}
	r.mu.RLock()
	code, ok := r.cache[ip]
	r.mu.RUnlock()
	if ok {
		return code
	}

	parsed := net.ParseIP(ip)
	if parsed != nil {
		if rec, err := r.db.Country(parsed); err == nil {
			code = rec.Country.IsoCode
		}
	}

	r.mu.Lock()
	if len(r.cache) >= maxCacheEntries {
		r.cache = make(map[string]string)
	}
	r.cache[ip] = code
	r.mu.Unlock()
	return code
}

// Close releases the database.
func (r *Resolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
