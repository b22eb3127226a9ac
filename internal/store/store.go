// Package store holds the three independent durable Sentinel records:
// configuration, local state and the threat event log. Each can be loaded and
// saved on its own; a broken record never prevents the others from working.
package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Stores groups the records kept in one data directory.
type Stores struct {
	Config *ConfigStore
	State  *StateStore
	Events *EventStore
}

// Open prepares dir and returns the stores rooted in it. Records are created
// lazily on first load.
func Open(dir string) (*Stores, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("ensure sentinel data directory: %w", err)
	}
	return &Stores{
		Config: NewConfigStore(filepath.Join(dir, ConfigFile)),
		State:  NewStateStore(filepath.Join(dir, StateFile)),
		Events: NewEventStore(filepath.Join(dir, EventsFile)),
	}, nil
}
