package db

import (
	"database/sql"

	"github.com/cockroachdb/errors"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// migrations is the list of all migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_numbering_schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(SchemaSQL)
			return err
		},
	},
}

func createVersionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to create schema_version table")
	}
	return nil
}

// RunMigrations executes all pending migrations, each in its own transaction.
func RunMigrations(db *sql.DB) error {
	if err := createVersionTable(db); err != nil {
		return err
	}

	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return errors.Wrap(err, "failed to get current schema version")
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrapf(err, "failed to begin transaction for migration %d", migration.Version)
		}

		if err := migration.Up(tx); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "migration %d (%s) failed", migration.Version, migration.Name)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to record migration %d", migration.Version)
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "failed to commit migration %d", migration.Version)
		}
	}

	return nil
}
