package migrate

import (
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"sql/001_create_runs.up.sql":   {Data: []byte("CREATE TABLE runs (id TEXT PRIMARY KEY);")},
		"sql/002_create_points.up.sql": {Data: []byte("CREATE TABLE points (run_id TEXT, lat REAL, lon REAL);")},
		"sql/README.md":                {Data: []byte("not a migration")},
	}
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n == 1
}

func TestLoad(t *testing.T) {
	migrations, err := Load(testMigrations(), "sql")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("got %d migrations, want 2", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("migrations out of order: %+v", migrations)
	}
	if migrations[1].Name != "create points" {
		t.Errorf("name = %q, want %q", migrations[1].Name, "create points")
	}
}

func TestLoadRejectsDuplicateVersion(t *testing.T) {
	fsys := testMigrations()
	fsys["sql/002_other.up.sql"] = &fstest.MapFile{Data: []byte("SELECT 1;")}
	if _, err := Load(fsys, "sql"); err == nil {
		t.Fatal("duplicate version accepted")
	}
}

func TestMigrateUp(t *testing.T) {
	db := openTestDB(t)
	fsys := testMigrations()
	m := NewMigrator(db, fsys, "sql")

	if v, err := m.CurrentVersion(); err != nil || v != 0 {
		t.Fatalf("fresh version = %d, %v; want 0", v, err)
	}
	if err := m.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	if v, _ := m.CurrentVersion(); v != 2 {
		t.Fatalf("version = %d, want 2", v)
	}
	if !tableExists(t, db, "runs") || !tableExists(t, db, "points") {
		t.Fatal("tables not created")
	}

	// Running again is a no-op
	if err := m.MigrateUp(); err != nil {
		t.Fatalf("second MigrateUp: %v", err)
	}

	// A later release adds a step; only it runs
	fsys["sql/003_add_index.up.sql"] = &fstest.MapFile{Data: []byte("CREATE INDEX points_run ON points (run_id);")}
	if err := m.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp after new migration: %v", err)
	}
	if v, _ := m.CurrentVersion(); v != 3 {
		t.Fatalf("version = %d, want 3", v)
	}
}

func TestMigrateUpRollsBackFailedStep(t *testing.T) {
	db := openTestDB(t)
	fsys := testMigrations()
	fsys["sql/003_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE runs (id TEXT);")}

	m := NewMigrator(db, fsys, "sql")
	if err := m.MigrateUp(); err == nil {
		t.Fatal("broken migration applied")
	}
	if v, _ := m.CurrentVersion(); v != 2 {
		t.Fatalf("version = %d, want 2", v)
	}
}
