package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"customer-care/internal/tracker"
)

// SQLiteStore keeps one row per session in a SQLite database. It follows
// the same locking discipline as FileStore.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &StorageError{Op: "init", Path: path, Err: fmt.Errorf("ensure dir: %w", err)}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Op: "init", Path: path, Err: fmt.Errorf("open sqlite db: %w", err)}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, &StorageError{Op: "init", Path: path, Err: err}
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS trackers (
			session_id TEXT PRIMARY KEY,
			events TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Save(t *tracker.Tracker) error {
	if t == nil || t.SessionID == "" {
		return ErrEmptySessionID
	}
	doc, err := tracker.Encode(t)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`DELETE FROM trackers WHERE session_id = ?`, t.SessionID); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: fmt.Errorf("delete: %w", err)}
	}
	if _, err := tx.Exec(`INSERT INTO trackers(session_id, events, updated_at_ms) VALUES(?, ?, ?)`,
		t.SessionID, string(doc.Events), time.Now().UnixMilli()); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: fmt.Errorf("insert: %w", err)}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

func (s *SQLiteStore) Retrieve(sessionID string) (*tracker.Tracker, bool, error) {
	s.mu.Lock()
	var events string
	err := s.db.QueryRow(`SELECT events FROM trackers WHERE session_id = ?`, sessionID).Scan(&events)
	s.mu.Unlock()
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &StorageError{Op: "retrieve", Path: s.path, Err: err}
	}
	t, err := tracker.Decode(tracker.Document{SessionID: sessionID, Events: []byte(events)})
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (s *SQLiteStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT session_id FROM trackers`)
	if err != nil {
		return nil, &StorageError{Op: "keys", Path: s.path, Err: err}
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &StorageError{Op: "keys", Path: s.path, Err: err}
		}
		keys = append(keys, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "keys", Path: s.path, Err: err}
	}
	return keys, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
