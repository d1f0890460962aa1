// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jcodagnone/mapimport/record"
	"github.com/jcodagnone/mapimport/spatial"
	"github.com/jcodagnone/mapimport/storage"
)

// SQLCatalog is a catalog stored in the catalog_records table. Records are
// indexed by their H3 cell so vicinity queries only scan nearby rows.
type SQLCatalog struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLCatalog creates a catalog over db. Call CreateSchema before use.
func NewSQLCatalog(db *sql.DB) *SQLCatalog {
	return &SQLCatalog{db: db, now: time.Now}
}

// CreateSchema creates the catalog_records table and its cell index.
func (s *SQLCatalog) CreateSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS catalog_records (
			id VARCHAR PRIMARY KEY,
			external_id VARCHAR NOT NULL DEFAULT '',
			source VARCHAR NOT NULL DEFAULT '',
			title VARCHAR NOT NULL DEFAULT '',
			lat DOUBLE NOT NULL,
			lon DOUBLE NOT NULL,
			cell BIGINT NOT NULL,
			tags VARCHAR NOT NULL DEFAULT '{}',
			photos VARCHAR NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS catalog_records_cell_idx ON catalog_records (cell);
	`)

	return storage.Wrap("creating catalog_records", err)
}

const selectRecord = `
	SELECT id, external_id, source, title, lat, lon, tags, photos, created_at
	FROM catalog_records
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*record.ExistingRecord, error) {
	var (
		r      record.ExistingRecord
		tags   string
		photos string
	)

	if err := row.Scan(&r.ID, &r.ExternalID, &r.Source, &r.Title, &r.Lat, &r.Lon, &tags, &photos, &r.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of %s: %w", r.ID, err)
	}

	if err := json.Unmarshal([]byte(photos), &r.Photos); err != nil {
		return nil, fmt.Errorf("decoding photos of %s: %w", r.ID, err)
	}

	return &r, nil
}

// FindNear implements Catalog.
func (s *SQLCatalog) FindNear(ctx context.Context, lat, lon, radius float64) ([]*record.ExistingRecord, error) {
	origin := spatial.Point{Lat: lat, Lng: lon}
	if !origin.Valid() {
		return nil, &Error{Op: "find near", Message: fmt.Sprintf("invalid coordinate %s", origin)}
	}

	cells, err := spatial.CoveringCells(origin, radius)
	if err != nil {
		return nil, &Error{Op: "find near", Err: err}
	}

	placeholders := make([]string, len(cells))
	args := make([]any, len(cells))

	for i, c := range cells {
		placeholders[i] = "?"
		args[i] = c
	}

	rows, err := s.db.QueryContext(ctx,
		selectRecord+" WHERE cell IN ("+strings.Join(placeholders, ", ")+")", args...)
	if err != nil {
		return nil, storage.Wrap("querying catalog_records", err)
	}
	defer rows.Close()

	type near struct {
		rec  *record.ExistingRecord
		dist float64
	}

	var found []near

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, storage.Wrap("scanning catalog_records", err)
		}

		p := r.Point()
		if d := origin.HaversineDistance(&p); d <= radius {
			found = append(found, near{rec: r, dist: d})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("iterating catalog_records", err)
	}

	slices.SortFunc(found, func(a, b near) int {
		if a.dist != b.dist {
			if a.dist < b.dist {
				return -1
			}

			return 1
		}

		return strings.Compare(a.rec.ID, b.rec.ID)
	})

	out := make([]*record.ExistingRecord, len(found))
	for i, n := range found {
		out[i] = n.rec
	}

	return out, nil
}

// CreateRecord implements Catalog.
func (s *SQLCatalog) CreateRecord(ctx context.Context, c *record.ImportCandidate) (string, error) {
	if err := c.Validate(); err != nil {
		return "", &Error{Op: "create", Err: err}
	}

	cell, err := spatial.Cell(c.Point())
	if err != nil {
		return "", &Error{Op: "create", Err: err}
	}

	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}

	photos := c.Photos
	if photos == nil {
		photos = []string{}
	}

	photosJSON, err := json.Marshal(photos)
	if err != nil {
		return "", fmt.Errorf("encoding photos: %w", err)
	}

	id := uuid.NewString()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO catalog_records (id, external_id, source, title, lat, lon, cell, tags, photos, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, c.ExternalID, c.Source, c.Title, c.Lat, c.Lon, cell, string(tags), string(photosJSON), s.now().UTC())
	if err != nil {
		return "", storage.Wrap("inserting catalog_records", err)
	}

	return id, nil
}

// Get returns the record with the given id.
func (s *SQLCatalog) Get(ctx context.Context, id string) (*record.ExistingRecord, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectRecord+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	return r, storage.Wrap("reading catalog_records", err)
}

// AppendTags implements Catalog. Keys the record already has are left alone.
func (s *SQLCatalog) AppendTags(ctx context.Context, id string, tags record.Tags) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Wrap("starting transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var raw string

	err = tx.QueryRowContext(ctx, "SELECT tags FROM catalog_records WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	if err != nil {
		return storage.Wrap("reading catalog_records tags", err)
	}

	var current record.Tags
	if err := json.Unmarshal([]byte(raw), &current); err != nil {
		return fmt.Errorf("decoding tags of %s: %w", id, err)
	}

	changed := false

	tags.Each(func(k, v string) {
		if !current.Has(k) {
			current.Set(k, v)

			changed = true
		}
	})

	if !changed {
		return nil
	}

	updated, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE catalog_records SET tags = ? WHERE id = ?", string(updated), id); err != nil {
		return storage.Wrap("updating catalog_records tags", err)
	}

	return storage.Wrap("committing tags", tx.Commit())
}

// Count returns the number of records in the catalog.
func (s *SQLCatalog) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_records").Scan(&n)

	return n, storage.Wrap("counting catalog_records", err)
}
