package database

import (
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpenMigratesToLatest(t *testing.T) {
	db := openTestDB(t)

	version, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestReopenAppliesNothing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	first, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	first.Close()

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	applied, err := migrate(conn, slog.Default())
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if applied != 0 {
		t.Errorf("expected no migrations on an up-to-date db, got %d", applied)
	}
}

func TestMigrateFreshDatabase(t *testing.T) {
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	if v, _ := schemaVersion(conn); v != 0 {
		t.Fatalf("expected version 0 on a fresh db, got %d", v)
	}
	applied, err := migrate(conn, slog.Default())
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if applied != len(migrations) {
		t.Errorf("expected %d migrations applied, got %d", len(migrations), applied)
	}
}

func TestPending(t *testing.T) {
	if got := len(pending(0)); got != len(migrations) {
		t.Errorf("expected every migration pending at version 0, got %d", got)
	}
	if got := len(pending(latestVersion())); got != 0 {
		t.Errorf("expected nothing pending at latest, got %d", got)
	}
}

func TestSchemaHasAllTables(t *testing.T) {
	db := openTestDB(t)
	for _, table := range []string{"competitors", "scrape_targets", "updates", "alerts", "digests", "comparisons"} {
		var n int
		if err := db.conn.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&n); err != nil {
			t.Fatalf("querying sqlite_master: %v", err)
		}
		if n != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}
}
