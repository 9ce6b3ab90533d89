package database

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew_CreatesConnection(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}

	if err := db.Ping(); err != nil {
		t.Errorf("Ping() error = %v, want nil", err)
	}
}

func TestNew_CreatesParentDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(dbPath)); err != nil {
		t.Errorf("parent directory missing: %v", err)
	}
}

func TestRunMigrations_CreatesAllTables(t *testing.T) {
	db := newMigratedDB(t)

	for _, table := range []string{"blobs", "sync_history"} {
		var exists int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&exists)
		if err != nil {
			t.Errorf("checking table %s: %v", table, err)
			continue
		}
		if exists != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestRunMigrations_CreatesIndexes(t *testing.T) {
	db := newMigratedDB(t)

	for _, index := range []string{"idx_sync_history_provider", "idx_sync_history_started"} {
		var exists int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?`, index).Scan(&exists)
		if err != nil {
			t.Errorf("checking index %s: %v", index, err)
			continue
		}
		if exists != 1 {
			t.Errorf("index %s does not exist", index)
		}
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := newMigratedDB(t)

	for i := 0; i < 3; i++ {
		if err := db.RunMigrations(); err != nil {
			t.Fatalf("RunMigrations() iteration %d error = %v, want nil", i+1, err)
		}
	}
}

func newMigratedDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.RunMigrations(); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	return db
}
