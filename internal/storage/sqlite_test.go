package storage

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"customer-care/internal/tracker"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trackers.db"))
	if err != nil {
		t.Fatalf("init sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_Upsert(t *testing.T) {
	s := newSQLiteStore(t)
	if err := s.Save(newTracker("u1", tracker.SlotSet("language", "es"))); err != nil {
		t.Fatalf("save1: %v", err)
	}
	second := newTracker("u1", tracker.SlotSet("language", "fr"))
	if err := s.Save(second); err != nil {
		t.Fatalf("save2: %v", err)
	}
	got, found, err := s.Retrieve("u1")
	if err != nil || !found {
		t.Fatalf("retrieve: %v %v", found, err)
	}
	if !reflect.DeepEqual(got.Events(), second.Events()) {
		t.Fatalf("want second save, got %+v", got.Events())
	}
	keys, err := s.Keys()
	if err != nil || len(keys) != 1 {
		t.Fatalf("keys: %v %v", keys, err)
	}
	if _, found, err := s.Retrieve("unknown"); found || err != nil {
		t.Fatalf("unknown session: found=%v err=%v", found, err)
	}
}

func TestSQLiteStore_ConcurrentSaves(t *testing.T) {
	s := newSQLiteStore(t)
	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			if err := s.Save(newTracker(id, tracker.SlotSet("n", i))); err != nil {
				t.Errorf("save %s: %v", id, err)
			}
		}(i)
	}
	wg.Wait()
	keys, err := s.Keys()
	if err != nil || len(keys) != n {
		t.Fatalf("want %d keys, got %v (%v)", n, keys, err)
	}
	for i := 0; i < n; i++ {
		got, found, err := s.Retrieve(fmt.Sprintf("s%d", i))
		if err != nil || !found || got.IntSlot("n") != i {
			t.Fatalf("session s%d: found=%v err=%v", i, found, err)
		}
	}
}

func TestOpen_SelectsBackend(t *testing.T) {
	dir := t.TempDir()
	fs, err := Open("file", filepath.Join(dir, "a.json"))
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	if _, ok := fs.(*FileStore); !ok {
		t.Fatalf("want *FileStore, got %T", fs)
	}
	db, err := Open("SQLite", filepath.Join(dir, "b.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	if _, ok := db.(*SQLiteStore); !ok {
		t.Fatalf("want *SQLiteStore, got %T", db)
	}
}

func TestSQLiteStore_Schema(t *testing.T) {
	s := newSQLiteStore(t)
	tr := newTracker("u1", tracker.SlotSet("language", "es"))
	if err := s.Save(tr); err != nil {
		t.Fatalf("save: %v", err)
	}
	doc, err := tracker.Encode(tr)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var (
		events    string
		updatedAt int64
	)
	if err := s.db.QueryRow(`SELECT events, updated_at_ms FROM trackers WHERE session_id = ?`, "u1").Scan(&events, &updatedAt); err != nil {
		t.Fatalf("query: %v", err)
	}
	if events != string(doc.Events) || updatedAt <= 0 {
		t.Fatalf("unexpected row: %q %d", events, updatedAt)
	}
}
