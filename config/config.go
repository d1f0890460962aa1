// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the mapimport TOML configuration file.
//
// Missing files are not an error: every field has a default, so the file only
// has to carry what differs. GOOGLE_MAPS_API_KEY and MAPIMPORT_USER_AGENT
// fill their settings when the file leaves them empty.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jcodagnone/mapimport/geocache"
	"github.com/jcodagnone/mapimport/similarity"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Providers accepted in geocoder.provider.
const (
	ProviderNominatim = "nominatim"
	ProviderGoogle    = "google"
)

// publicNominatimIntervalMS is the gap the public Nominatim usage policy
// requires between requests.
const publicNominatimIntervalMS = 1000

// Storage locates the local database.
type Storage struct {
	// DBPath is the directory holding the database and its lock file.
	DBPath string `toml:"db_path"`
}

// Geocoder configures the reverse geocoding provider.
type Geocoder struct {
	Provider  string `toml:"provider"`
	BaseURL   string `toml:"base_url"`
	UserAgent string `toml:"user_agent"`
	Email     string `toml:"email"`
	Language  string `toml:"language"`
	// MinIntervalMS is the minimum time between two outbound calls.
	MinIntervalMS  int  `toml:"min_interval_ms"`
	TimeoutSeconds int  `toml:"timeout_seconds"`
	HTTPTrace      bool `toml:"http_trace"`

	GoogleAPIKey string `toml:"google_api_key"`
	// GoogleKeyName is the display name of the key looked up with
	// Application Default Credentials when no key is configured.
	GoogleKeyName string `toml:"google_key_name"`
	GoogleProject string `toml:"google_project"`
}

// Catalog configures the catalog the importer reconciles against.
type Catalog struct {
	// URL of a remote catalog. Empty uses the catalog kept in the local
	// database.
	URL            string `toml:"url"`
	Attempts       int    `toml:"attempts"`
	BaseDelayMS    int    `toml:"base_delay_ms"`
	MaxDelayMS     int    `toml:"max_delay_ms"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ServeAddr      string `toml:"serve_addr"`
}

// Import configures batch runs.
type Import struct {
	// AddressTags adds the geocoded address as addr:* tags.
	AddressTags bool `toml:"address_tags"`
	// SearchRadiusMeters of the catalog query, zero uses the scoring cutoff.
	SearchRadiusMeters float64 `toml:"search_radius_meters"`
}

// Config is the whole configuration file.
type Config struct {
	Storage  Storage           `toml:"storage"`
	Geocoder Geocoder          `toml:"geocoder"`
	Catalog  Catalog           `toml:"catalog"`
	Import   Import            `toml:"import"`
	Scoring  similarity.Config `toml:"scoring"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Storage: Storage{DBPath: "~/.local/share/mapimport"},
		Geocoder: Geocoder{
			Provider:       ProviderNominatim,
			UserAgent:      "mapimport (+https://github.com/jcodagnone/mapimport)",
			MinIntervalMS:  1000,
			TimeoutSeconds: 30,
			GoogleKeyName:  "mapimport Geocoding Key",
		},
		Catalog: Catalog{
			Attempts:       5,
			BaseDelayMS:    500,
			MaxDelayMS:     30000,
			TimeoutSeconds: 30,
			ServeAddr:      "localhost:8080",
		},
		Import:  Import{AddressTags: true},
		Scoring: similarity.DefaultConfig(),
	}
}

// DefaultConfigPath returns where Load looks when no path is given.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mapimport/config.toml")
}

// SampleConfig returns a commented configuration file with the defaults.
func SampleConfig() string {
	return sampleConfig
}

// Load reads the file at path, or the default locations when path is empty,
// over Default. It returns the path it resolved and whether it existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		dec := toml.NewDecoder(file)
		dec.DisallowUnknownFields()

		if err := dec.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolved, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}

		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}

			return "", false, fmt.Errorf("stat config: %w", err)
		}

		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mapimport.toml")
	if err != nil {
		return "", false, err
	}

	for _, p := range []string{projectPath, defaultPath} {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true, nil
		}
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Storage.DBPath, err = expandPath(c.Storage.DBPath); err != nil {
		return fmt.Errorf("storage.db_path: %w", err)
	}

	c.Geocoder.Provider = strings.ToLower(strings.TrimSpace(c.Geocoder.Provider))

	if c.Geocoder.GoogleAPIKey == "" {
		c.Geocoder.GoogleAPIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	}

	if ua := os.Getenv("MAPIMPORT_USER_AGENT"); ua != "" && c.Geocoder.UserAgent == Default().Geocoder.UserAgent {
		c.Geocoder.UserAgent = ua
	}

	c.Catalog.URL = strings.TrimRight(strings.TrimSpace(c.Catalog.URL), "/")

	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Storage.DBPath == "" {
		errs = append(errs, errors.New("storage.db_path is required"))
	}

	switch c.Geocoder.Provider {
	case ProviderNominatim:
		if strings.TrimSpace(c.Geocoder.UserAgent) == "" {
			errs = append(errs, errors.New("geocoder.user_agent is required by nominatim"))
		}
	case ProviderGoogle:
	default:
		errs = append(errs, fmt.Errorf("geocoder.provider must be %q or %q, got %q",
			ProviderNominatim, ProviderGoogle, c.Geocoder.Provider))
	}

	switch {
	case c.Geocoder.MinIntervalMS <= 0:
		errs = append(errs, fmt.Errorf("geocoder.min_interval_ms must be positive, got %d", c.Geocoder.MinIntervalMS))
	case c.Geocoder.Provider == ProviderNominatim && c.publicNominatim() && c.Geocoder.MinIntervalMS < publicNominatimIntervalMS:
		errs = append(errs, fmt.Errorf("geocoder.min_interval_ms must be at least %d for the public nominatim server, got %d",
			publicNominatimIntervalMS, c.Geocoder.MinIntervalMS))
	}

	if c.Geocoder.TimeoutSeconds < 0 || c.Catalog.TimeoutSeconds < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}

	if c.Catalog.Attempts < 1 {
		errs = append(errs, fmt.Errorf("catalog.attempts must be at least 1, got %d", c.Catalog.Attempts))
	}

	if c.Catalog.BaseDelayMS <= 0 || c.Catalog.MaxDelayMS < c.Catalog.BaseDelayMS {
		errs = append(errs, errors.New("catalog.base_delay_ms must be positive and not above catalog.max_delay_ms"))
	}

	if c.Import.SearchRadiusMeters < 0 {
		errs = append(errs, errors.New("import.search_radius_meters must not be negative"))
	}

	if err := c.Scoring.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scoring: %w", err))
	}

	return errors.Join(errs...)
}

func (c *Config) publicNominatim() bool {
	base := strings.TrimRight(c.Geocoder.BaseURL, "/")

	return base == "" || base == geocache.DefaultNominatimURL
}

// MinInterval returns geocoder.min_interval_ms as a duration.
func (g Geocoder) MinInterval() time.Duration {
	return time.Duration(g.MinIntervalMS) * time.Millisecond
}

// Timeout returns geocoder.timeout_seconds as a duration.
func (g Geocoder) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// BaseDelay returns catalog.base_delay_ms as a duration.
func (c Catalog) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns catalog.max_delay_ms as a duration.
func (c Catalog) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}

// Timeout returns catalog.timeout_seconds as a duration.
func (c Catalog) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ExpandPath resolves ~ and makes path absolute.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}

	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}

		if path == "~" {
			path = home
		} else if len(path) > 1 && (path[1] == '/' || path[1] == '\\') {
			path = filepath.Join(home, path[2:])
		}
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", path, err)
	}

	return abs, nil
}
