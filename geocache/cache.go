// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocache

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jcodagnone/mapimport/spatial"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// Metrics counts what a Cache did.
type Metrics struct {
	Hits    int
	Misses  int
	Fetched int
	Errors  int
}

// Options configures New.
type Options struct {
	// Throttle spaces outbound calls. Nil means DefaultMinInterval on the wall clock.
	Throttle *Throttle
	Logger   *zerolog.Logger
}

// Cache answers Lookup from the store and falls back to the geocoder,
// persisting every answer before returning it.
type Cache struct {
	store    Store
	geocoder ReverseGeocoder
	throttle *Throttle
	logger   zerolog.Logger
	Metrics  Metrics
}

// New creates a cache.
func New(store Store, geocoder ReverseGeocoder, opts Options) *Cache {
	throttle := opts.Throttle
	if throttle == nil {
		throttle = NewThrottle(DefaultMinInterval, nil)
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "geocache").Logger()
	}

	return &Cache{
		store:    store,
		geocoder: geocoder,
		throttle: throttle,
		logger:   logger,
	}
}

// Lookup returns the entry for (lat, lon) rounded to spatial.KeyPrecision.
//
// Errors matching ErrGeocodeUnavailable are per-coordinate failures and leave
// nothing behind. A *storage.PersistenceError means the store itself failed.
func (c *Cache) Lookup(ctx context.Context, lat, lon float64) (*Entry, error) {
	p := spatial.Point{Lat: lat, Lng: lon}
	if !p.Valid() {
		return nil, &GeocodingError{
			Type:    ErrorTypeInvalidRequest,
			Message: fmt.Sprintf("invalid coordinate (%f, %f)", lat, lon),
		}
	}

	key := spatial.KeyOf(p)

	entry, err := c.store.Get(ctx, key)
	if err == nil {
		c.Metrics.Hits++

		return entry, nil
	}

	if !errors.Is(err, ErrNotCached) {
		return nil, err
	}

	c.Metrics.Misses++

	return c.fetch(ctx, key)
}

// Cached reports whether the coordinate is already in the store.
func (c *Cache) Cached(ctx context.Context, lat, lon float64) (bool, error) {
	_, err := c.store.Get(ctx, spatial.KeyOf(spatial.Point{Lat: lat, Lng: lon}))
	if err == nil {
		return true, nil
	}

	if errors.Is(err, ErrNotCached) {
		return false, nil
	}

	return false, err
}

func (c *Cache) fetch(ctx context.Context, key spatial.Key) (*Entry, error) {
	waited := c.throttle.Wait()

	// the rounded coordinate is what gets cached, so it is also what gets asked.
	p := key.Point()

	res, err := c.geocoder.Reverse(ctx, p.Lat, p.Lng)
	if err != nil {
		c.Metrics.Errors++

		var geoErr *GeocodingError
		if !errors.As(err, &geoErr) {
			err = &GeocodingError{Type: ErrorTypeUnknown, Message: "geocoding failed", Err: err}
		}

		c.logger.Warn().
			Err(err).
			Str("key", key.String()).
			Str("provider", c.geocoder.Name()).
			Msg("reverse geocoding failed")

		return nil, err
	}

	entry := &Entry{
		Key:           key,
		DisplayName:   res.DisplayName,
		Address:       res.Address,
		Provider:      c.geocoder.Name(),
		RawResponse:   res.Raw,
		SchemaVersion: SchemaVersion,
		CreatedAt:     c.throttle.LastCall().UTC(),
	}

	if err := c.store.Put(ctx, entry); err != nil {
		return nil, err
	}

	c.Metrics.Fetched++

	c.logger.Debug().
		Str("key", key.String()).
		Str("display_name", entry.DisplayName).
		Dur("throttled", waited).
		Msg("cached reverse geocoding answer")

	return entry, nil
}

// WarmOptions configures Warm.
type WarmOptions struct {
	// Progress shows a progress bar on stderr when it is a terminal.
	Progress bool
}

// WarmMetrics summarizes a Warm run.
type WarmMetrics struct {
	Total   int
	Unique  int
	Cached  int
	Fetched int
	Failed  int
}

// Warm fills the cache for points. Duplicated keys are visited once, keys
// already stored are skipped without throttling, and every fetched entry is
// persisted before the next one so an interrupted run resumes at the first
// miss. Geocoding failures are counted and skipped; store failures and
// context cancellation stop the run.
func (c *Cache) Warm(ctx context.Context, points []spatial.Point, opts WarmOptions) (WarmMetrics, error) {
	m := WarmMetrics{Total: len(points)}

	seen := make(map[spatial.Key]bool, len(points))
	keys := make([]spatial.Key, 0, len(points))

	for _, p := range points {
		if !p.Valid() {
			m.Failed++

			continue
		}

		k := spatial.KeyOf(p)
		if seen[k] {
			continue
		}

		seen[k] = true

		keys = append(keys, k)
	}

	m.Unique = len(keys)

	var bar *progressbar.ProgressBar
	if opts.Progress && isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(len(keys),
			progressbar.OptionSetDescription("Warming geocode cache"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return m, err
		}

		if bar != nil {
			_ = bar.Add(1)
		}

		_, err := c.store.Get(ctx, k)
		if err == nil {
			m.Cached++

			continue
		}

		if !errors.Is(err, ErrNotCached) {
			return m, err
		}

		if _, err := c.fetch(ctx, k); err != nil {
			if errors.Is(err, ErrGeocodeUnavailable) {
				m.Failed++

				continue
			}

			return m, err
		}

		m.Fetched++

		if bar == nil {
			c.logger.Info().Msgf("[%d/%d] cached %s", i+1, len(keys), k)
		}
	}

	return m, nil
}
