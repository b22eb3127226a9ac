package store

import (
	"errors"
	"fmt"
)

// ErrDefaultsApplied is informational: the record did not exist and its
// defaults were materialized. The returned value is valid.
var ErrDefaultsApplied = errors.New("defaults applied")

// StorageError reports a read, write or decode failure on a persisted record.
// Callers on the request path log it and carry on with defaults.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
