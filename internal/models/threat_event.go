package models

import (
	"encoding/json"
	"time"
)

// Event sources and confidence levels.
const (
	EventSourceAuto  = "auto"
	EventSourceAdmin = "admin"

	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// ThreatEvent is one classified hit or manual block. Events are immutable once
// written; the event log only ever trims the oldest entries.
type ThreatEvent struct {
	ID             string    `json:"id"`
	SiteID         string    `json:"site_id"`
	Timestamp      time.Time `json:"timestamp"`
	ThreatCategory string    `json:"threat_category"`
	MatchedPattern string    `json:"matched_pattern"`
	Confidence     string    `json:"confidence"`
	Source         string    `json:"source"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	RequestURL     string    `json:"request_url"`
	RequestMethod  string    `json:"request_method"`
	Domain         string    `json:"domain"`
	Country        string    `json:"country,omitempty"`
}

// UnmarshalJSON decodes current rows and migrates rows written by the legacy
// runtime, which used ts/ip/ua/path/category keys.
func (e *ThreatEvent) UnmarshalJSON(data []byte) error {
	type current ThreatEvent
	var aux struct {
		current
		Timestamp string `json:"timestamp"`
		LegacyTS  string `json:"ts"`
		LegacyIP  string `json:"ip"`
		LegacyUA  string `json:"ua"`
		LegacyURL string `json:"path"`
		LegacyCat string `json:"category"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = ThreatEvent(aux.current)
	e.Timestamp = parseEventTime(aux.Timestamp)
	if e.Timestamp.IsZero() {
		e.Timestamp = parseEventTime(aux.LegacyTS)
	}
	if e.IPAddress == "" {
		e.IPAddress = aux.LegacyIP
	}
	if e.UserAgent == "" {
		e.UserAgent = aux.LegacyUA
	}
	if e.RequestURL == "" {
		e.RequestURL = aux.LegacyURL
	}
	if e.ThreatCategory == "" {
		e.ThreatCategory = aux.LegacyCat
	}
	if e.Source == "" && aux.LegacyCat != "" {
		e.Source = EventSourceAuto
	}
	return nil
}

func parseEventTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
