package storage

import (
	"errors"
	"fmt"
	"strings"

	"customer-care/internal/tracker"
)

// Store persists one tracker document per session id.
// Implementations must be safe for concurrent use: every Save and Retrieve
// runs under a single store-wide lock, so a reader never sees a session
// with zero or two documents once a Save has returned.
//
// Concurrent saves of the same session are last-writer-wins; there is no
// merge of the two histories.
type Store interface {
	// Save replaces the stored document for t.SessionID with the encoded t.
	Save(t *tracker.Tracker) error
	// Retrieve returns the replayed tracker, or found=false for a session
	// that was never saved.
	Retrieve(sessionID string) (t *tracker.Tracker, found bool, err error)
	// Keys lists every stored session id in no particular order.
	Keys() ([]string, error)
	Close() error
}

var (
	ErrEmptySessionID = errors.New("empty session id")
	ErrUnknownBackend = errors.New("unknown tracker store backend")
)

// StorageError reports that the underlying medium could not be read or
// written. Callers may retry or continue without persisted state.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("tracker store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err is, or wraps, a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open creates the store selected by backend.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendFile:
		return NewFileStore(path)
	case BackendSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}
