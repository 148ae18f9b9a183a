package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens a db at path and prepares it for use.
// It creates the tables when they don't exist yet, so it is ok to call
// it on a fresh path.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// Enable Write-Ahead Logging. See https://sqlite.org/wal.html
	if _, err := db.Exec(`PRAGMA journal_mode = wal;`); err != nil {
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	// Enable foreign key checks.
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("foreign keys pragma: %w", err)
	}
	err = create(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// create creates all tables of the store if not exist.
func create(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	err = CreateJobsTable(tx)
	if err != nil {
		return err
	}
	err = CreateJobHistoryTable(tx)
	if err != nil {
		return err
	}
	err = CreateHostsTable(tx)
	if err != nil {
		return err
	}
	err = CreateHostStatusTable(tx)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// jsonText marshals v for storing into a TEXT column.
func jsonText(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// scanJSON unmarshals a TEXT column value into v.
func scanJSON(s string, v interface{}) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
