package store

import (
	"time"

	"github.com/Wikid82/sentinel/internal/models"
)

// StateFile is the local state record name inside the data directory.
const StateFile = "sentinel_local.json"

// StateStore persists the block-list and sync markers.
type StateStore struct {
	doc *document[models.LocalState]
}

// NewStateStore returns a store backed by path.
func NewStateStore(path string) *StateStore {
	return &StateStore{doc: &document[models.LocalState]{
		path: path,
		defaults: func() *models.LocalState {
			return models.DefaultLocalState(time.Now())
		},
		normalize: (*models.LocalState).Normalize,
		clone:     (*models.LocalState).Clone,
	}}
}

// Path returns the backing file path.
func (s *StateStore) Path() string { return s.doc.path }

// Load returns the persisted state, materializing it on first use.
func (s *StateStore) Load() (*models.LocalState, error) {
	v, err := s.doc.load()
	return v.Clone(), err
}

// Save writes st atomically.
func (s *StateStore) Save(st *models.LocalState) error {
	return s.doc.save(st)
}

// Current returns the cached state. Callers must not mutate the result.
func (s *StateStore) Current() *models.LocalState {
	return s.doc.current()
}

// Update runs a read-modify-write cycle under the store's write lock.
func (s *StateStore) Update(fn func(*models.LocalState) error) (*models.LocalState, error) {
	return s.doc.update(fn)
}
