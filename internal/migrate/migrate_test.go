package migrate_test

import (
	"testing"

	"fleetline/internal/db"
	"fleetline/internal/migrate"
)

func TestMigrateIsRepeatable(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var version int
	if err := conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version < 1 {
		t.Fatalf("schema version = %d, want >= 1", version)
	}

	// schema must be usable after a repeat run
	if _, err := conn.Exec(`INSERT INTO missions(id,title,vessel,assigned_by_id,assigned_by_name,assigned_to_id,assigned_to_name,due_date,priority,status,progress,created_at,updated_at)
VALUES ('m-1','t','v','a','A','b','B','2026-03-10T00:00:00Z','medium','pending',0,'2026-03-01T12:00:00Z','2026-03-01T12:00:00Z')`); err != nil {
		t.Fatalf("insert after migrate: %v", err)
	}
}
