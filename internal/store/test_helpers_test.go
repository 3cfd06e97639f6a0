package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/fieldsync/internal/record"
)

// createTestStore creates a new on-disk store under t.TempDir().
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntry creates an insert entry with payload {id, name}.
func createTestEntry(entryID, recordID, table string, enqueuedAt int64) record.QueueEntry {
	return record.QueueEntry{
		EntryID:    entryID,
		RecordID:   recordID,
		Table:      table,
		Action:     record.ActionInsert,
		Payload:    record.Payload{"id": recordID, "name": "n-" + recordID},
		EnqueuedAt: enqueuedAt,
	}
}
