// Package schema applies the embedded SQL migrations of the relational
// document stores.
package schema

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// Dialect names a supported SQL backend
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// MigrationRunner handles database migrations
type MigrationRunner struct {
	db         *sql.DB
	dialect    Dialect
	migrations []Migration
}

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *sql.DB, dialect Dialect) (*MigrationRunner, error) {
	mr := &MigrationRunner{
		db:      db,
		dialect: dialect,
	}

	if err := mr.loadMigrations(); err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	return mr, nil
}

// Migrations returns the loaded migrations in version order
func (mr *MigrationRunner) Migrations() []Migration {
	return mr.migrations
}

func (mr *MigrationRunner) loadMigrations() error {
	var fsys fs.FS
	var path string

	switch mr.dialect {
	case Postgres:
		fsys, path = postgresFS, "migrations/postgres"
	case SQLite:
		fsys, path = sqliteFS, "migrations/sqlite"
	default:
		return fmt.Errorf("unsupported database type: %s", mr.dialect)
	}

	entries, err := fs.ReadDir(fsys, path)
	if err != nil {
		return fmt.Errorf("failed to read migration directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(fsys, path+"/"+entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		// "001_initial.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("invalid migration filename %s: %w", entry.Name(), err)
		}

		mr.migrations = append(mr.migrations, Migration{
			Version: version,
			Name:    entry.Name(),
			SQL:     string(content),
		})
	}

	sort.Slice(mr.migrations, func(i, j int) bool {
		return mr.migrations[i].Version < mr.migrations[j].Version
	})
	return nil
}

// Run executes all pending migrations and returns how many were applied
func (mr *MigrationRunner) Run(ctx context.Context) (int, error) {
	if err := mr.createSchemaVersionTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to create schema version table: %w", err)
	}

	current, err := mr.CurrentVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}

	applied := 0
	for _, migration := range mr.migrations {
		if migration.Version <= current {
			continue
		}
		if err := mr.runMigration(ctx, migration); err != nil {
			return applied, fmt.Errorf("failed to run migration %s: %w", migration.Name, err)
		}
		applied++
	}
	return applied, nil
}

func (mr *MigrationRunner) createSchemaVersionTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if mr.dialect == Postgres {
		query = strings.ReplaceAll(query, "TIMESTAMP DEFAULT CURRENT_TIMESTAMP", "TIMESTAMP DEFAULT NOW()")
	}

	_, err := mr.db.ExecContext(ctx, query)
	return err
}

// CurrentVersion returns the highest applied migration version
func (mr *MigrationRunner) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := mr.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// runMigration runs a single migration in a transaction
func (mr *MigrationRunner) runMigration(ctx context.Context, migration Migration) error {
	tx, err := mr.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	recordQuery := "INSERT INTO schema_version (version, name) VALUES ($1, $2)"
	if mr.dialect == SQLite {
		recordQuery = "INSERT INTO schema_version (version, name) VALUES (?, ?)"
	}
	if _, err := tx.ExecContext(ctx, recordQuery, migration.Version, migration.Name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
