// Package sqliteutil is the shared open path for the engine's sqlite files:
// the chunk/vector store and the per-agent memory database both go through
// Open so the pragmas and pool limits stay in one place.
package sqliteutil

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Open opens (creating if needed) the sqlite database at path with WAL
// journaling, a 5s busy timeout, and foreign keys on. The pool is capped at
// one connection: sqlite serializes writers anyway, and a single connection
// turns would-be SQLITE_BUSY errors into queueing.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create database directory %q: %w", dir, err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, describeOpenError(path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Ping forces file creation so a bad path fails here, not mid-query.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, describeOpenError(path, err)
	}

	return db, nil
}

// describeOpenError turns sqlite's bare CANTOPEN into a message naming what
// is actually wrong with the target directory; other errors pass through.
func describeOpenError(path string, err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code() != sqlite3.SQLITE_CANTOPEN {
		return err
	}

	dir := filepath.Dir(path)
	info, statErr := os.Stat(dir)
	switch {
	case os.IsNotExist(statErr):
		return fmt.Errorf("cannot create database at %q: directory %q does not exist", path, dir)
	case statErr != nil:
		return fmt.Errorf("cannot create database at %q: %w", path, statErr)
	case !info.IsDir():
		return fmt.Errorf("cannot create database at %q: %q is not a directory", path, dir)
	default:
		return fmt.Errorf("cannot create database at %q: permission denied (original error: %v)", path, err)
	}
}
