package migrate_test

import (
	"testing"

	"curseward/internal/db"
	"curseward/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var version int
	if err := conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version < 1 {
		t.Fatalf("schema version not recorded, got %d", version)
	}

	// curses exists only if step 001 actually ran
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM curses`).Scan(&n); err != nil {
		t.Fatalf("curses table missing: %v", err)
	}
}
