// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog is the boundary with the catalog the importer reconciles
// against. Client talks to a remote catalog over HTTP; SQLCatalog keeps one
// in the local database and Server exposes it with the same routes.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jcodagnone/mapimport/record"
)

var (
	// ErrCatalogUnavailable matches every failure worth retrying.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrNotFound is returned when a record id is unknown.
	ErrNotFound = errors.New("catalog record not found")
)

// Catalog is the set of operations the importer needs.
type Catalog interface {
	// FindNear returns the records within radius meters of (lat, lon),
	// nearest first.
	FindNear(ctx context.Context, lat, lon, radius float64) ([]*record.ExistingRecord, error)
	// CreateRecord stores a new record and returns its id.
	CreateRecord(ctx context.Context, c *record.ImportCandidate) (string, error)
	// AppendTags adds tags whose keys the record does not have yet.
	AppendTags(ctx context.Context, id string, tags record.Tags) error
}

// Error describes a failed catalog call.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	// Temporary failures match ErrCatalogUnavailable.
	Temporary bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	if e.StatusCode != 0 {
		return fmt.Sprintf("catalog %s: status %d: %s", e.Op, e.StatusCode, msg)
	}

	return fmt.Sprintf("catalog %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes temporary errors match ErrCatalogUnavailable.
func (e *Error) Is(target error) bool {
	return e.Temporary && target == ErrCatalogUnavailable
}

// IsUnavailable reports whether err is a retryable catalog failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrCatalogUnavailable)
}
