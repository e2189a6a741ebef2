// Package db owns the SQLite connection and the authoritative schema.
package db

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
)

// Open opens (creating if needed) the SQLite database at path and brings the
// schema up to date.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	// busy_timeout lets concurrent trigger workers wait for the write lock
	// instead of failing with SQLITE_BUSY.
	dsn := "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := InitSchema(database); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	return database, nil
}

// DefaultPath returns the default database location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, ".wfm", "wfm.db"), nil
}
