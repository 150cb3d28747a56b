package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stored in PRAGMA user_version when the schema is created.
const schemaVersion = 1

// ErrSchemaTooNew is returned by Open for a database created by a newer
// build, whose counter layout this build cannot be trusted to update.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

// connectionPragmas configure every opened database:
// WAL for reads during writes, NORMAL sync, five seconds of lock waiting.
var connectionPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

// Store is a SQLite-backed counter store.
type Store struct {
	db *sql.DB
}

// Open opens the counter database at path, creating it if needed.
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// One connection: SQLite has a single writer, and an in-memory
	// database only exists on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// prepare applies the connection pragmas and creates the schema on a fresh
// database. An existing database must carry a schema version this build
// knows.
func prepare(db *sql.DB) error {
	for _, pragma := range connectionPragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	switch {
	case version > schemaVersion:
		return fmt.Errorf("%w: version %d, supported %d", ErrSchemaTooNew, version, schemaVersion)
	case version == schemaVersion:
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return tx.Commit()
}

// pragma returns the current value of a pragma as text.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
