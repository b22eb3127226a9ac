package store

import (
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/Wikid82/sentinel/internal/models"
)

// ConfigFile is the configuration record name inside the data directory.
const ConfigFile = "sentinel_config.json"

// ConfigStore persists the engine configuration.
type ConfigStore struct {
	doc *document[models.SentinelConfig]
}

// NewConfigStore returns a store backed by path.
func NewConfigStore(path string) *ConfigStore {
	return &ConfigStore{doc: &document[models.SentinelConfig]{
		path: path,
		defaults: func() *models.SentinelConfig {
			return models.DefaultSentinelConfig(NewSiteID())
		},
		normalize: normalizeConfig,
		clone:     (*models.SentinelConfig).Clone,
	}}
}

func normalizeConfig(c *models.SentinelConfig) {
	c.Normalize()
	if c.SiteID == "" {
		c.SiteID = NewSiteID()
	}
}

// NewSiteID returns a fresh "site_" + 16 hex character identifier.
func NewSiteID() string {
	u := uuid.New()
	return "site_" + hex.EncodeToString(u[:8])
}

// Path returns the backing file path.
func (s *ConfigStore) Path() string { return s.doc.path }

// Load returns the persisted configuration merged over defaults. The result is
// always usable; err is nil, ErrDefaultsApplied, or a *StorageError.
func (s *ConfigStore) Load() (*models.SentinelConfig, error) {
	v, err := s.doc.load()
	return v.Clone(), err
}

// Save writes cfg atomically.
func (s *ConfigStore) Save(cfg *models.SentinelConfig) error {
	return s.doc.save(cfg)
}

// Current returns the cached configuration, reloading it if the file changed.
// Callers must not mutate the result.
func (s *ConfigStore) Current() *models.SentinelConfig {
	return s.doc.current()
}

// Update runs a read-modify-write cycle under the store's write lock.
func (s *ConfigStore) Update(fn func(*models.SentinelConfig) error) (*models.SentinelConfig, error) {
	return s.doc.update(fn)
}
