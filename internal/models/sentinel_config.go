package models

import (
	"encoding/json"
	"strings"
)

// SentinelConfigSchemaVersion is the schema written by this build. Version 1
// files stored allow_list as a flat array.
const SentinelConfigSchemaVersion = 2

// SentinelConfig is the persisted engine configuration (sentinel_config.json).
type SentinelConfig struct {
	SchemaVersion    int           `json:"schema_version"`
	APIKey           string        `json:"api_key"`
	APIBase          string        `json:"api_base"`
	SiteID           string        `json:"site_id"`
	UpdateInterval   int           `json:"update_interval"` // seconds
	LogThreats       bool          `json:"log_threats"`
	BlockThreats     bool          `json:"block_threats"`
	AutoUpdate       bool          `json:"auto_update"`
	Debug            bool          `json:"debug"`
	AllowList        AllowList     `json:"allow_list"`
	ThreatCategories ThreatCatalog `json:"threat_categories"`
}

// AllowList holds IPs that bypass inspection.
type AllowList struct {
	IPs []string `json:"ips"`
}

// UnmarshalJSON accepts both {"ips": [...]} and the legacy flat array.
func (a *AllowList) UnmarshalJSON(data []byte) error {
	var flat []string
	if err := json.Unmarshal(data, &flat); err == nil {
		a.IPs = flat
		return nil
	}
	type plain AllowList
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	a.IPs = p.IPs
	return nil
}

// Contains reports whether ip is allow-listed.
func (a AllowList) Contains(ip string) bool {
	return containsIP(a.IPs, ip)
}

// Clone returns a deep copy of the configuration.
func (c *SentinelConfig) Clone() *SentinelConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.AllowList.IPs = append([]string(nil), c.AllowList.IPs...)
	out.ThreatCategories = c.ThreatCategories.Clone()
	return &out
}

// Normalize canonicalizes and deduplicates the allow-list and stamps the
// schema version.
func (c *SentinelConfig) Normalize() {
	c.AllowList.IPs = CanonicalIPs("allow_list", c.AllowList.IPs)
	if c.ThreatCategories == nil {
		c.ThreatCategories = ThreatCatalog{}
	}
	c.SchemaVersion = SentinelConfigSchemaVersion
}

// DefaultThreatCatalog returns the built-in signature catalog.
func DefaultThreatCatalog() ThreatCatalog {
	return ThreatCatalog{
		{Name: "wp_admin_scan", Signatures: []string{
			"/wp-admin", "/wp-admin/", "/wp-login.php",
			"/xmlrpc.php", "/wp-content", "/wp-includes", "/administrator",
		}},
		{Name: "config_scan", Signatures: []string{"/wp-config.php", "/config.xml", "/configuration.php"}},
		{Name: "sql_injection", Signatures: []string{"UNION SELECT", "DROP TABLE", " OR 1=1 ", "INSERT INTO", "DELETE FROM"}},
		{Name: "xss_attempt", Signatures: []string{"<script>", "javascript:", "onload=", "alert(", "document.cookie"}},
		{Name: "bot_probe", Signatures: []string{
			"/phpmyadmin", "/.env", "/.env.backup", "/.git", "/backup", "/adminer.php",
			"masscan", "sqlmap", "nikto", "zgrab",
		}},
		{Name: "file_inclusion", Signatures: []string{"./", "/etc/passwd", `C:\Windows\`}},
		{Name: "command_injection", Signatures: []string{"; ls", "| cat", "`id`", "$(whoami)"}},
	}
}

// DefaultSentinelConfig returns defaults with the given site id.
func DefaultSentinelConfig(siteID string) *SentinelConfig {
	return &SentinelConfig{
		SchemaVersion:    SentinelConfigSchemaVersion,
		APIBase:          "https://api.stn-labz.com",
		SiteID:           siteID,
		UpdateInterval:   1800,
		LogThreats:       true,
		BlockThreats:     true,
		AutoUpdate:       true,
		AllowList:        AllowList{IPs: []string{}},
		ThreatCategories: DefaultThreatCatalog(),
	}
}

// UniqueStrings trims values, drops empties and duplicates, and keeps first-seen order.
// It never returns nil.
func UniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
