package db

import (
	"database/sql"

	"github.com/cockroachdb/errors"
)

// SchemaSQL is the complete schema for fresh installs.
// This schema reflects the current state after all migrations.
//
// This is the SINGLE SOURCE OF TRUTH for the database schema. Repository
// tests load it through GetSchemaSQL(); they must not declare tables of
// their own.
//
// When adding new columns or tables:
//  1. Append a migration to migrations in migrations.go
//  2. Update SchemaSQL here
const SchemaSQL = `
-- Branches (tenant locations; the numbering scope key)
CREATE TABLE IF NOT EXISTS branches (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

-- Projects (records without a branch inherit the project's branch)
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	branch_id TEXT,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (branch_id) REFERENCES branches(id)
);

-- Operational records (work orders and working reports)
-- serial is deliberately not UNIQUE: duplicates are detected and repaired.
CREATE TABLE IF NOT EXISTS records (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL CHECK(kind IN ('work_order', 'working_report')),
	title TEXT NOT NULL,
	project_id TEXT,
	branch_id TEXT,
	status TEXT NOT NULL CHECK(status IN ('draft', 'active', 'complete')) DEFAULT 'draft',
	serial TEXT,
	planned_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (project_id) REFERENCES projects(id)
);

CREATE INDEX IF NOT EXISTS idx_records_kind_created ON records(kind, created_at, id);
CREATE INDEX IF NOT EXISTS idx_records_kind_serial ON records(kind, serial);

-- Audit log (append-only)
CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	record_id TEXT NOT NULL,
	actor TEXT NOT NULL,
	description TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (record_id) REFERENCES records(id)
);

CREATE INDEX IF NOT EXISTS idx_audit_log_record ON audit_log(record_id, id);

-- Sequence counters (durable ledger of the last issued serial per scope)
CREATE TABLE IF NOT EXISTS sequence_counters (
	sequence TEXT NOT NULL,
	branch_id TEXT NOT NULL,
	year INTEGER NOT NULL,
	last_number INTEGER NOT NULL CHECK(last_number >= 0),
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (sequence, branch_id, year)
);
`

// InitSchema creates the database schema on a fresh database, or runs any
// pending migrations on an existing one.
func InitSchema(db *sql.DB) error {
	var tableCount int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableCount)
	if err != nil {
		return err
	}

	if tableCount > 0 {
		return RunMigrations(db)
	}

	// Fresh install - create the current schema directly and mark every
	// migration as applied.
	if _, err := db.Exec(SchemaSQL); err != nil {
		return errors.Wrap(err, "failed to create schema")
	}
	if err := createVersionTable(db); err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			return errors.Wrapf(err, "failed to record migration %d", m.Version)
		}
	}
	return nil
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
