package store

import (
	"encoding/json"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/Wikid82/sentinel/internal/logger"
	"github.com/Wikid82/sentinel/internal/metrics"
	"github.com/Wikid82/sentinel/internal/models"
)

const (
	// EventsFile is the event log record name inside the data directory.
	EventsFile = "sentinel_threats.json"
	// MaxEvents is the retention ceiling of the event log.
	MaxEvents = 5000
)

// KeyCount is one row of a top-N report.
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// EventStore is the append-only, size-bounded threat event log. The whole log
// is kept in memory and rewritten atomically on every append. A file that is
// missing or corrupt reads as an empty log.
type EventStore struct {
	path string
	max  int

	mu     sync.Mutex
	events []models.ThreatEvent
	stamp  fileStamp
	loaded bool
}

// NewEventStore returns an event log backed by path, bounded to MaxEvents.
func NewEventStore(path string) *EventStore {
	return &EventStore{path: path, max: MaxEvents}
}

// Path returns the backing file path.
func (s *EventStore) Path() string { return s.path }

// refreshLocked reloads the log when the file changed since the last read or
// write. Failures leave the in-memory log as it was.
func (s *EventStore) refreshLocked() {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !s.loaded {
			s.events = nil
			s.stamp = fileStamp{missing: true}
			s.loaded = true
		}
		return
	}
	if s.loaded && s.stamp.matches(info) {
		return
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		metrics.IncStorageError()
		logger.Log().WithError(err).WithField("path", s.path).Warn("sentinel: event log unreadable")
		return
	}
	s.events = decodeEvents(data, s.path)
	s.stamp = stampOf(info)
	s.loaded = true
}

// decodeEvents parses the log, skipping rows that do not decode. Anything but
// a JSON array yields an empty log.
func decodeEvents(data []byte, path string) []models.ThreatEvent {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		metrics.IncStorageError()
		logger.Log().WithError(err).WithField("path", path).Warn("sentinel: event log corrupt, treating as empty")
		return nil
	}
	events := make([]models.ThreatEvent, 0, len(rows))
	for _, row := range rows {
		var ev models.ThreatEvent
		if err := json.Unmarshal(row, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events
}

// Append adds ev, trims the log to the newest entries and persists it. The
// in-memory log keeps the event even if the write fails.
func (s *EventStore) Append(ev models.ThreatEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked()
	s.events = append(s.events, ev)
	if over := len(s.events) - s.max; over > 0 {
		trimmed := make([]models.ThreatEvent, s.max)
		copy(trimmed, s.events[over:])
		s.events = trimmed
	}
	return s.persistLocked()
}

func (s *EventStore) persistLocked() error {
	events := s.events
	if events == nil {
		events = []models.ThreatEvent{}
	}
	data, err := encodeJSON(events)
	if err != nil {
		return &StorageError{Op: "encode", Path: s.path, Err: err}
	}
	if err := atomicWriteFile(s.path, data, filePerm); err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	if info, err := os.Stat(s.path); err == nil {
		s.stamp = stampOf(info)
	}
	return nil
}

// CountByIP returns the all-time number of logged events for ip.
func (s *EventStore) CountByIP(ip string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()

	n := 0
	for i := range s.events {
		if s.events[i].IPAddress == ip {
			n++
		}
	}
	return n
}

// Len returns the number of retained events.
func (s *EventStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()
	return len(s.events)
}

// All returns a copy of the log in append order.
func (s *EventStore) All() []models.ThreatEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()
	return append([]models.ThreatEvent(nil), s.events...)
}

// Recent returns up to limit events, newest first by timestamp. Events with
// equal timestamps keep reverse append order. limit <= 0 returns everything.
func (s *EventStore) Recent(limit int) []models.ThreatEvent {
	all := s.All()
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// TopIPs returns the n IPs with the most events.
func (s *EventStore) TopIPs(n int) []KeyCount {
	return s.top(n, func(ev *models.ThreatEvent) string { return ev.IPAddress })
}

// TopCategories returns the n categories with the most events.
func (s *EventStore) TopCategories(n int) []KeyCount {
	return s.top(n, func(ev *models.ThreatEvent) string { return ev.ThreatCategory })
}

func (s *EventStore) top(n int, key func(*models.ThreatEvent) string) []KeyCount {
	s.mu.Lock()
	counts := make(map[string]int)
	s.refreshLocked()
	for i := range s.events {
		if k := key(&s.events[i]); k != "" {
			counts[k]++
		}
	}
	s.mu.Unlock()

	out := make([]KeyCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, KeyCount{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// LastSeen returns the newest event timestamp.
func (s *EventStore) LastSeen() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()

	var last time.Time
	for i := range s.events {
		if s.events[i].Timestamp.After(last) {
			last = s.events[i].Timestamp
		}
	}
	return last, !last.IsZero()
}
