package models

import "time"

// LocalStateSchemaVersion is the schema written by this build.
const LocalStateSchemaVersion = 1

// Blocklists mirrors the on-disk blocklists object. Only IPs is enforced by the
// engine; the remaining lists are carried for intel data compatibility.
type Blocklists struct {
	IPs        []string `json:"ips"`
	UserAgents []string `json:"user_agents"`
	ASNs       []string `json:"asns"`
	Ranges     []string `json:"ranges"`
	Countries  []string `json:"countries"`
}

// LocalState is the mutable engine state (sentinel_local.json).
type LocalState struct {
	SchemaVersion    int        `json:"schema_version"`
	Blocklists       Blocklists `json:"blocklists"`
	LastSync         *time.Time `json:"last_sync"`
	LastManualResync *time.Time `json:"last_manual_resync,omitempty"`
	DataVersion      string     `json:"data_version"`
	SyncHash         string     `json:"sync_hash"`
	InstallDate      time.Time  `json:"install_date"`
}

// DefaultLocalState returns a freshly installed state.
func DefaultLocalState(now time.Time) *LocalState {
	s := &LocalState{
		SchemaVersion: LocalStateSchemaVersion,
		DataVersion:   "0.0.0",
		InstallDate:   now.UTC().Truncate(time.Second),
	}
	s.Normalize()
	return s
}

// IsBlocked reports whether ip is on the block-list.
func (s *LocalState) IsBlocked(ip string) bool {
	return containsIP(s.Blocklists.IPs, ip)
}

// Normalize canonicalizes block-listed IPs, deduplicates lists, replaces nil slices and stamps the schema version.
func (s *LocalState) Normalize() {
	s.Blocklists.IPs = CanonicalIPs("blocklists.ips", s.Blocklists.IPs)
	s.Blocklists.UserAgents = UniqueStrings(s.Blocklists.UserAgents)
	s.Blocklists.ASNs = UniqueStrings(s.Blocklists.ASNs)
	s.Blocklists.Ranges = UniqueStrings(s.Blocklists.Ranges)
	s.Blocklists.Countries = UniqueStrings(s.Blocklists.Countries)
	if s.DataVersion == "" {
		s.DataVersion = "0.0.0"
	}
	s.SchemaVersion = LocalStateSchemaVersion
}

// Clone returns a deep copy.
func (s *LocalState) Clone() *LocalState {
	if s == nil {
		return nil
	}
	out := *s
	out.Blocklists = Blocklists{
		IPs:        append([]string(nil), s.Blocklists.IPs...),
		UserAgents: append([]string(nil), s.Blocklists.UserAgents...),
		ASNs:       append([]string(nil), s.Blocklists.ASNs...),
		Ranges:     append([]string(nil), s.Blocklists.Ranges...),
		Countries:  append([]string(nil), s.Blocklists.Countries...),
	}
	if s.LastSync != nil {
		t := *s.LastSync
		out.LastSync = &t
	}
	if s.LastManualResync != nil {
		t := *s.LastManualResync
		out.LastManualResync = &t
	}
	return &out
}
