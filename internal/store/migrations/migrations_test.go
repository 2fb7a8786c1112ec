package migrations_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"vidrepo/internal/store/migrations"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := openDB(t)
	if err := migrations.MigrateUp(db); err != nil {
		t.Fatalf("first MigrateUp: %v", err)
	}
	if err := migrations.MigrateUp(db); err != nil {
		t.Fatalf("second MigrateUp: %v", err)
	}

	for _, table := range []string{"repositories", "commits", "assets"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count); err != nil {
			t.Fatalf("query sqlite_master: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected table %s to exist", table)
		}
	}
}

func TestStatusReportsLatest(t *testing.T) {
	db := openDB(t)
	if err := migrations.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	current, latest, err := migrations.Status(db)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if current != latest || latest != 1 {
		t.Fatalf("expected current == latest == 1, got %d/%d", current, latest)
	}
}
