package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"customer-care/internal/tracker"
)

// FileStore keeps all trackers in one JSON file holding an array of
// documents. The whole file is rewritten on every Save.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &StorageError{Op: "init", Path: path, Err: fmt.Errorf("ensure dir: %w", err)}
	}
	// Touch file if not exists
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, &StorageError{Op: "init", Path: path, Err: fmt.Errorf("touch file: %w", err)}
	}
	_ = f.Close()
	return &FileStore{path: path}, nil
}

// Path is the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Save(t *tracker.Tracker) error {
	if t == nil || t.SessionID == "" {
		return ErrEmptySessionID
	}
	doc, err := tracker.Encode(t)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.loadUnlocked()
	if err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	out := make([]tracker.Document, 0, len(docs)+1)
	for _, d := range docs {
		if d.SessionID != t.SessionID {
			out = append(out, d)
		}
	}
	out = append(out, doc)
	if err := s.saveUnlocked(out); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

func (s *FileStore) Retrieve(sessionID string) (*tracker.Tracker, bool, error) {
	s.mu.Lock()
	docs, err := s.loadUnlocked()
	s.mu.Unlock()
	if err != nil {
		return nil, false, &StorageError{Op: "retrieve", Path: s.path, Err: err}
	}
	for _, d := range docs {
		if d.SessionID == sessionID {
			t, err := tracker.Decode(d)
			if err != nil {
				return nil, false, err
			}
			return t, true, nil
		}
	}
	return nil, false, nil
}

func (s *FileStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.loadUnlocked()
	if err != nil {
		return nil, &StorageError{Op: "keys", Path: s.path, Err: err}
	}
	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.SessionID != "" {
			keys = append(keys, d.SessionID)
		}
	}
	return keys, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) loadUnlocked() ([]tracker.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read: %w", err)
	}
	docs, err := tracker.UnmarshalDocuments(data)
	if err != nil {
		return nil, fmt.Errorf("corrupted store file: %w", err)
	}
	return docs, nil
}

// saveUnlocked writes to a temporary file and renames it into place, so a
// crash mid-write leaves the previous file intact.
func (s *FileStore) saveUnlocked(docs []tracker.Document) error {
	data, err := tracker.MarshalDocuments(docs)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
