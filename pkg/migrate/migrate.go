// Package migrate brings an embedded SQLite schema up to date. Migrations are
// forward-only files named NNN_description.up.sql; the highest applied
// version is recorded in a tracking table.
package migrate

import (
	"database/sql"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DefaultTable is the tracking table used when none is given.
const DefaultTable = "schema_migrations"

var migrationFile = regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)

// Migration is one schema step.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Load reads the migrations in dir, ordered by version. Files that do not
// look like migrations are ignored.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory %s: %w", dir, err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, e := range entries {
		m := migrationFile.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("invalid version number in file %s: %w", e.Name(), err)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by both %s and %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		body, err := fs.ReadFile(fsys, dir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", e.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version: version,
			Name:    strings.ReplaceAll(m[2], "_", " "),
			SQL:     string(body),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Migrator applies the migrations found in one directory of an fs.FS.
type Migrator struct {
	db     *sql.DB
	fsys   fs.FS
	dir    string
	table  string
	logger *zap.SugaredLogger
}

// NewMigrator returns a migrator for the migrations in dir, tracked in
// DefaultTable.
func NewMigrator(db *sql.DB, fsys fs.FS, dir string) *Migrator {
	return &Migrator{
		db:     db,
		fsys:   fsys,
		dir:    dir,
		table:  DefaultTable,
		logger: zap.NewNop().Sugar(),
	}
}

// WithLogger logs applied migrations to logger
func (m *Migrator) WithLogger(logger *zap.SugaredLogger) *Migrator {
	if logger != nil {
		m.logger = logger
	}
	return m
}

func (m *Migrator) ensureTable() error {
	_, err := m.db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`, m.table))
	if err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	return nil
}

// CurrentVersion returns the highest applied version, 0 for a fresh database.
func (m *Migrator) CurrentVersion() (int, error) {
	if err := m.ensureTable(); err != nil {
		return 0, err
	}
	var version int
	if err := m.db.QueryRow(fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", m.table)).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// MigrateUp applies every migration newer than the current version, each in
// its own transaction.
func (m *Migrator) MigrateUp() error {
	current, err := m.CurrentVersion()
	if err != nil {
		return err
	}
	migrations, err := Load(m.fsys, m.dir)
	if err != nil {
		return err
	}

	for _, mig := range migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", mig.Version, err)
		}
		m.logger.Infow("applied migration", "version", mig.Version, "name", mig.Name)
	}
	return nil
}

func (m *Migrator) apply(mig Migration) error {
	if strings.TrimSpace(mig.SQL) == "" {
		return fmt.Errorf("migration %d is empty", mig.Version)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("INSERT INTO %s (version) VALUES (?)", m.table), mig.Version); err != nil {
		return fmt.Errorf("failed to record migration version: %w", err)
	}
	return tx.Commit()
}
