// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage opens the local DuckDB database that holds the geocode
// cache, the import batch log and, for local runs, the catalog.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/gofrs/flock"
)

// DatabaseFile is the file name of the database inside the db directory.
const DatabaseFile = "mapimport.duckdb"

const lockFile = "mapimport.lock"

// ErrLocked is returned by Open when another process owns the db directory.
var ErrLocked = errors.New("database directory is in use by another mapimport process")

// PersistenceError reports a failure of the local store. Resuming a batch
// depends on this store, so callers treat it as fatal.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a *PersistenceError, or nil if err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}

	return &PersistenceError{Op: op, Err: err}
}

// IsPersistence reports whether err is (or wraps) a *PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError

	return errors.As(err, &pe)
}

// DB is the opened database plus the directory lock that guards it.
type DB struct {
	*sql.DB
	lock *flock.Flock
}

// Open creates dir if needed, takes the single-writer lock and opens the
// database inside it.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFile))

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}

	if !ok {
		return nil, ErrLocked
	}

	db, err := sql.Open("duckdb", filepath.Join(dir, DatabaseFile))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("opening database: %w", err), lock.Unlock())
	}

	if err := db.Ping(); err != nil {
		return nil, errors.Join(fmt.Errorf("opening database: %w", err), db.Close(), lock.Unlock())
	}

	return &DB{DB: db, lock: lock}, nil
}

// OpenMemory opens a private in-memory database, used by tests and dry runs.
func OpenMemory() (*DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Close closes the database and releases the lock.
func (d *DB) Close() error {
	err := d.DB.Close()
	if d.lock != nil {
		err = errors.Join(err, d.lock.Unlock())
	}

	return err
}
