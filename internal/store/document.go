package store

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Wikid82/sentinel/internal/logger"
	"github.com/Wikid82/sentinel/internal/metrics"
)

type fileStamp struct {
	missing bool
	modTime time.Time
	size    int64
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{modTime: info.ModTime(), size: info.Size()}
}

func (s fileStamp) matches(info os.FileInfo) bool {
	return !s.missing && s.modTime.Equal(info.ModTime()) && s.size == info.Size()
}

type snapshot[T any] struct {
	value *T
	stamp fileStamp
}

// document is a single JSON record on disk with an in-memory snapshot that is
// refreshed when the file changes underneath it. Writers are serialized by mu;
// readers only ever swap the snapshot pointer.
type document[T any] struct {
	path      string
	defaults  func() *T
	normalize func(*T)
	clone     func(*T) *T

	mu    sync.Mutex
	snap  atomic.Pointer[snapshot[T]]
	group singleflight.Group
}

func (d *document[T]) remember(v *T, stamp fileStamp) {
	d.snap.Store(&snapshot[T]{value: v, stamp: stamp})
}

// load reads the record from disk, bypassing the snapshot check.
func (d *document[T]) load() (*T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadLocked()
}

// loadLocked materializes and persists defaults when the record is missing.
// An unreadable or undecodable record yields defaults plus a *StorageError and
// is left untouched on disk.
func (d *document[T]) loadLocked() (*T, error) {
	info, err := os.Stat(d.path)
	if errors.Is(err, os.ErrNotExist) {
		v := d.defaults()
		d.normalize(v)
		if werr := d.writeLocked(v); werr != nil {
			d.remember(v, fileStamp{missing: true})
			return v, werr
		}
		return v, ErrDefaultsApplied
	}
	if err != nil {
		v := d.defaults()
		d.normalize(v)
		return v, &StorageError{Op: "stat", Path: d.path, Err: err}
	}

	data, err := os.ReadFile(d.path)
	if err != nil {
		v := d.defaults()
		d.normalize(v)
		return v, &StorageError{Op: "read", Path: d.path, Err: err}
	}

	v := d.defaults()
	if err := json.Unmarshal(data, v); err != nil {
		v = d.defaults()
		d.normalize(v)
		d.remember(v, stampOf(info))
		return v, &StorageError{Op: "decode", Path: d.path, Err: err}
	}
	d.normalize(v)
	d.remember(v, stampOf(info))
	return v, nil
}

func (d *document[T]) writeLocked(v *T) error {
	data, err := encodeJSON(v)
	if err != nil {
		return &StorageError{Op: "encode", Path: d.path, Err: err}
	}
	if err := atomicWriteFile(d.path, data, filePerm); err != nil {
		return &StorageError{Op: "write", Path: d.path, Err: err}
	}
	stamp := fileStamp{missing: true}
	if info, err := os.Stat(d.path); err == nil {
		stamp = stampOf(info)
	}
	d.remember(v, stamp)
	return nil
}

// current returns the shared snapshot, reloading it when the file changed.
// The returned value must be treated as read-only.
func (d *document[T]) current() *T {
	snap := d.snap.Load()
	if snap != nil {
		info, err := os.Stat(d.path)
		switch {
		case err == nil && snap.stamp.matches(info):
			return snap.value
		case errors.Is(err, os.ErrNotExist) && snap.stamp.missing:
			return snap.value
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return snap.value
		}
	}

	v, _, _ := d.group.Do(d.path, func() (any, error) {
		v, err := d.load()
		logLoadError(d.path, err)
		return v, nil
	})
	return v.(*T)
}

func (d *document[T]) save(v *T) error {
	if v == nil {
		return &StorageError{Op: "write", Path: d.path, Err: errors.New("nil record")}
	}
	c := d.clone(v)
	d.normalize(c)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeLocked(c)
}

// update applies fn to a fresh copy of the on-disk record and persists it.
// If fn returns an error nothing is written.
func (d *document[T]) update(fn func(*T) error) (*T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, err := d.loadLocked()
	if err != nil && !errors.Is(err, ErrDefaultsApplied) {
		logLoadError(d.path, err)
	}
	c := d.clone(v)
	if err := fn(c); err != nil {
		return nil, err
	}
	d.normalize(c)
	if err := d.writeLocked(c); err != nil {
		return nil, err
	}
	return d.clone(c), nil
}

func logLoadError(path string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrDefaultsApplied):
		logger.Log().WithField("path", path).Info("sentinel: materialized default record")
	default:
		metrics.IncStorageError()
		logger.Log().WithError(err).WithField("path", path).Warn("sentinel: falling back to defaults")
	}
}
