package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreatEvent_DecodesCurrentRows(t *testing.T) {
	var ev ThreatEvent
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "threat_1", "timestamp": "2026-03-01T10:00:00+02:00",
		"ip_address": "192.0.2.1", "source": "admin", "threat_category": "manual_block"
	}`), &ev))
	assert.Equal(t, "threat_1", ev.ID)
	assert.Equal(t, EventSourceAdmin, ev.Source)
	assert.True(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC).Equal(ev.Timestamp))
	assert.Equal(t, time.UTC, ev.Timestamp.Location())
}

func TestThreatEvent_MigratesLegacyRows(t *testing.T) {
	var ev ThreatEvent
	require.NoError(t, json.Unmarshal([]byte(`{
		"ts": "2025-06-01T12:00:00+00:00", "ip": "198.51.100.7",
		"ua": "sqlmap/1.0", "path": "/?id=1 UNION SELECT", "category": "sql_injection"
	}`), &ev))
	assert.Equal(t, "198.51.100.7", ev.IPAddress)
	assert.Equal(t, "sqlmap/1.0", ev.UserAgent)
	assert.Equal(t, "/?id=1 UNION SELECT", ev.RequestURL)
	assert.Equal(t, "sql_injection", ev.ThreatCategory)
	assert.Equal(t, EventSourceAuto, ev.Source)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestThreatEvent_BadTimestampIsZero(t *testing.T) {
	var ev ThreatEvent
	require.NoError(t, json.Unmarshal([]byte(`{"timestamp": "yesterday"}`), &ev))
	assert.True(t, ev.Timestamp.IsZero())
}
