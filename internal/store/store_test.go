package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	var count int
	if err := s2.db.QueryRow("SELECT COUNT(*) FROM pending_queue").Scan(&count); err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"pending_queue", "quarantine", "optimistic_overlay", "read_cache"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

// Pragma tests

func TestPragma_JournalMode(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s := createTestStore(t)
	// FULL = 2
	if err := s.verifyPragma("synchronous", "2"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestPragma_ForeignKeys(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

// Schema tests

func TestSchema_PendingQueueTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "pending_queue")
	expected := []string{
		"entry_id", "record_id", "table_name", "action", "payload",
		"enqueued_at", "retry_count", "last_error", "last_error_at",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("pending_queue table missing column %q", col)
		}
	}

	indexes := getTableIndexes(t, s.db, "pending_queue")
	for _, idx := range []string{"idx_pending_record", "idx_pending_enqueued"} {
		if !contains(indexes, idx) {
			t.Errorf("pending_queue table missing index %q", idx)
		}
	}
}

func TestSchema_QuarantineTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "quarantine")
	expected := []string{
		"entry_id", "record_id", "retry_count",
		"quarantined_at", "reason", "error_message", "error_code",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("quarantine table missing column %q", col)
		}
	}
}

func TestSchema_OverlayAndCacheTables(t *testing.T) {
	s := createTestStore(t)

	overlay := getTableColumns(t, s.db, "optimistic_overlay")
	for _, col := range []string{"table_name", "id", "data", "created_offline", "created_at"} {
		if !contains(overlay, col) {
			t.Errorf("optimistic_overlay table missing column %q", col)
		}
	}

	cache := getTableColumns(t, s.db, "read_cache")
	for _, col := range []string{"table_name", "id", "data", "created_at", "fetched_at"} {
		if !contains(cache, col) {
			t.Errorf("read_cache table missing column %q", col)
		}
	}
}

func TestSchema_ActionCheckConstraint(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO pending_queue (entry_id, record_id, table_name, action, payload, enqueued_at)
		VALUES ('e1', 'r1', 'farms', 'upsert', '{}', 1)
	`)
	if err == nil {
		t.Error("expected CHECK constraint violation for unknown action")
	}
}

// Migration tests

func TestMigrations_FreshDatabaseAtCurrentVersion(t *testing.T) {
	s := createTestStore(t)

	version, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion() failed: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigrations_UpgradeKeepsExistingCollections(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	// Simulate a database written by a client that only knew v1.
	old, err := openAt(path, 1)
	if err != nil {
		t.Fatalf("openAt(1) failed: %v", err)
	}
	if err := old.PutPending(ctx, createTestEntry("e1", "F1", "farms", 1)); err != nil {
		t.Fatalf("PutPending() failed: %v", err)
	}
	if tableExists(t, old.db, "optimistic_overlay") {
		t.Fatal("v1 database should not have optimistic_overlay")
	}
	old.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() failed: %v", err)
	}
	if version != 3 {
		t.Errorf("user_version = %d, want 3", version)
	}
	if !tableExists(t, s.db, "optimistic_overlay") || !tableExists(t, s.db, "read_cache") {
		t.Error("upgrade did not add overlay and cache tables")
	}

	e, err := s.GetPending(ctx, "e1")
	if err != nil {
		t.Fatalf("pending entry lost during upgrade: %v", err)
	}
	if e.RecordID != "F1" {
		t.Errorf("RecordID = %q, want F1", e.RecordID)
	}
}

func TestMigrations_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Error("expected error opening a database from a newer client")
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()

	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
	if err != nil {
		t.Fatalf("failed to check table %q: %v", table, err)
	}
	return n == 1
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
