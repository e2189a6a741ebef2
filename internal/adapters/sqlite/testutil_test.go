// Package sqlite_test contains integration tests for SQLite repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for tests.
// All test setup functions use db.GetSchemaSQL() to ensure tests run against
// the authoritative schema, preventing drift between test and production.
//
// DO NOT hardcode CREATE TABLE statements in test files. Use setupTestDB()
// and the seed* helpers instead.
package sqlite_test

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/wfm/internal/db"
)

// setupTestDB creates an in-memory database with the authoritative schema.
// A single connection is kept because every new :memory: connection is a
// separate, empty database.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	testDB.SetMaxOpenConns(1)

	// Use the authoritative schema from schema.go
	_, err = testDB.Exec(db.GetSchemaSQL())
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// seedBranch inserts a test branch and returns its ID.
func seedBranch(t *testing.T, db *sql.DB, id string) string {
	t.Helper()
	if id == "" {
		id = "B1"
	}
	_, err := db.Exec("INSERT INTO branches (id, name, created_at) VALUES (?, ?, ?)", id, "Branch "+id, time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to seed branch: %v", err)
	}
	return id
}

// seedProject inserts a test project bound to a branch and returns its ID.
func seedProject(t *testing.T, db *sql.DB, id, branchID string) string {
	t.Helper()
	if id == "" {
		id = "P1"
	}
	var branch any
	if branchID != "" {
		branch = branchID
	}
	_, err := db.Exec("INSERT INTO projects (id, name, branch_id, created_at) VALUES (?, ?, ?, ?)", id, "Project "+id, branch, time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to seed project: %v", err)
	}
	return id
}

// seedRecord inserts a work order with the given branch, creation time and serial.
func seedRecord(t *testing.T, db *sql.DB, id, branchID string, createdAt time.Time, serialNo string) string {
	t.Helper()
	var branch, number any
	if branchID != "" {
		branch = branchID
	}
	if serialNo != "" {
		number = serialNo
	}
	_, err := db.Exec(
		"INSERT INTO records (id, kind, title, branch_id, status, serial, created_at, updated_at) VALUES (?, 'work_order', ?, ?, 'active', ?, ?, ?)",
		id, "Record "+id, branch, number, createdAt.UTC(), createdAt.UTC(),
	)
	if err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}
	return id
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad time %q: %v", value, err)
	}
	return ts
}
