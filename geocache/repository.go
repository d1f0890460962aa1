// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocache

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jcodagnone/mapimport/spatial"
	"github.com/jcodagnone/mapimport/storage"
)

// ErrNotCached is returned by Store.Get on a miss.
var ErrNotCached = errors.New("coordinate not cached")

// Store persists cache entries. Implementations must ignore a Put for a key
// that is already stored.
type Store interface {
	Get(ctx context.Context, key spatial.Key) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Count(ctx context.Context) (int, error)
}

// SQLStore keeps entries in the geocode_cache table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over db. Call CreateSchema before use.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// CreateSchema creates the geocode_cache table.
func (s *SQLStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS geocode_cache (
			lat_key BIGINT NOT NULL,
			lng_key BIGINT NOT NULL,
			display_name VARCHAR NOT NULL,
			country VARCHAR,
			region VARCHAR,
			city VARCHAR,
			suburb VARCHAR,
			neighbourhood VARCHAR,
			road VARCHAR,
			postcode VARCHAR,
			provider VARCHAR NOT NULL,
			raw_response BLOB,
			schema_version INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (lat_key, lng_key)
		);
	`)

	return storage.Wrap("creating geocode_cache", err)
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key spatial.Key) (*Entry, error) {
	e := &Entry{Key: key}

	var country, region, city, suburb, neighbourhood, road, postcode sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT display_name, country, region, city, suburb, neighbourhood, road, postcode,
		       provider, raw_response, schema_version, created_at
		FROM geocode_cache
		WHERE lat_key = ? AND lng_key = ?
	`, key.Lat, key.Lng).Scan(
		&e.DisplayName,
		&country, &region, &city, &suburb, &neighbourhood, &road, &postcode,
		&e.Provider,
		&e.RawResponse,
		&e.SchemaVersion,
		&e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotCached
	}

	if err != nil {
		return nil, storage.Wrap("reading geocode_cache", err)
	}

	e.Address = Address{
		Country:       country.String,
		Region:        region.String,
		City:          city.String,
		Suburb:        suburb.String,
		Neighbourhood: neighbourhood.String,
		Road:          road.String,
		Postcode:      postcode.String,
	}

	return e, nil
}

// Put implements Store.
func (s *SQLStore) Put(ctx context.Context, e *Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO geocode_cache (
			lat_key, lng_key, display_name,
			country, region, city, suburb, neighbourhood, road, postcode,
			provider, raw_response, schema_version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Key.Lat, e.Key.Lng, e.DisplayName,
		e.Address.Country, e.Address.Region, e.Address.City, e.Address.Suburb,
		e.Address.Neighbourhood, e.Address.Road, e.Address.Postcode,
		e.Provider, e.RawResponse, e.SchemaVersion, e.CreatedAt,
	)

	return storage.Wrap("writing geocode_cache", err)
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM geocode_cache").Scan(&n)

	return n, storage.Wrap("counting geocode_cache", err)
}
