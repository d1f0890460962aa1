// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jcodagnone/mapimport/catalog"
	"github.com/jcodagnone/mapimport/config"
	"github.com/jcodagnone/mapimport/geocache"
	"github.com/jcodagnone/mapimport/importer"
	"github.com/jcodagnone/mapimport/storage"
	"github.com/jcodagnone/mapimport/utils/httputils"
)

// openStorage opens the local database and creates every schema in it.
func openStorage(ctx context.Context) (*storage.DB, error) {
	db, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Storage.DBPath, err)
	}

	schemas := []interface {
		CreateSchema(ctx context.Context) error
	}{
		geocache.NewSQLStore(db.DB),
		catalog.NewSQLCatalog(db.DB),
		importer.NewStateLog(db.DB),
	}

	for _, s := range schemas {
		if err := s.CreateSchema(ctx); err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return db, nil
}

func geocoderHTTPOptions() httputils.ClientOptions {
	opts := httputils.ClientOptions{
		UserAgent: cfg.Geocoder.UserAgent,
		Timeout:   cfg.Geocoder.Timeout(),
	}
	if cfg.Geocoder.HTTPTrace {
		opts.Trace = os.Stderr
	}

	return opts
}

func newProvider(ctx context.Context) (geocache.ReverseGeocoder, error) {
	g := cfg.Geocoder
	opts := geocoderHTTPOptions()

	switch g.Provider {
	case config.ProviderGoogle:
		key := g.GoogleAPIKey
		if key == "" {
			var err error
			if key, err = geocache.APIKeyFromADC(ctx, g.GoogleKeyName, g.GoogleProject, logger); err != nil {
				return nil, fmt.Errorf("google maps api key: %w", err)
			}
		}

		return geocache.NewGoogleMapsGeocoder(key, g.BaseURL, g.Language, opts)
	default:
		return geocache.NewNominatimGeocoder(geocache.NominatimOptions{
			BaseURL:   g.BaseURL,
			UserAgent: g.UserAgent,
			Email:     g.Email,
			Language:  g.Language,
			HTTP:      opts,
		})
	}
}

func newCache(ctx context.Context, db *storage.DB) (*geocache.Cache, error) {
	provider, err := newProvider(ctx)
	if err != nil {
		return nil, err
	}

	return geocache.New(geocache.NewSQLStore(db.DB), provider, geocache.Options{
		Throttle: geocache.NewThrottle(cfg.Geocoder.MinInterval(), nil),
		Logger:   &logger,
	}), nil
}

// newCatalog returns the remote catalog when catalog.url is set and the one
// kept in the local database otherwise.
func newCatalog(db *storage.DB) (catalog.Catalog, error) {
	if cfg.Catalog.URL == "" {
		logger.Info().Str("db_path", cfg.Storage.DBPath).Msg("using local catalog")

		return catalog.NewSQLCatalog(db.DB), nil
	}

	opts := httputils.ClientOptions{
		UserAgent: fmt.Sprintf("mapimport/%s", Version),
		Timeout:   cfg.Catalog.Timeout(),
	}
	if cfg.Geocoder.HTTPTrace {
		opts.Trace = os.Stderr
	}

	return catalog.NewClient(cfg.Catalog.URL, opts)
}
