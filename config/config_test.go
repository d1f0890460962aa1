// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jcodagnone/mapimport/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("GOOGLE_MAPS_API_KEY", "from-env")
	t.Setenv("MAPIMPORT_USER_AGENT", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, filepath.Join(home, ".config", "mapimport", "config.toml"), resolved)

	assert.Equal(t, filepath.Join(home, ".local", "share", "mapimport"), cfg.Storage.DBPath)
	assert.Equal(t, config.ProviderNominatim, cfg.Geocoder.Provider)
	assert.Equal(t, time.Second, cfg.Geocoder.MinInterval())
	assert.Equal(t, "from-env", cfg.Geocoder.GoogleAPIKey)
	assert.Equal(t, 5, cfg.Catalog.Attempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Catalog.BaseDelay())
	assert.True(t, cfg.Import.AddressTags)
	assert.True(t, cfg.Scoring.RequireProximity)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("GOOGLE_MAPS_API_KEY", "")
	t.Setenv("MAPIMPORT_USER_AGENT", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "mapimport.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[storage]
db_path = "`+filepath.ToSlash(dir)+`/db"

[geocoder]
provider = "Google"
google_api_key = "k"
min_interval_ms = 250

[catalog]
url = "http://catalog.local:8080/"
attempts = 2

[scoring]
high = 0.8
require_proximity = false

[scoring.weights]
title = 0.5
`), 0o600))

	cfg, resolved, exists, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, path, resolved)

	assert.Equal(t, filepath.Join(dir, "db"), cfg.Storage.DBPath)
	assert.Equal(t, config.ProviderGoogle, cfg.Geocoder.Provider)
	assert.Equal(t, 250*time.Millisecond, cfg.Geocoder.MinInterval())
	assert.Equal(t, "http://catalog.local:8080", cfg.Catalog.URL)
	assert.Equal(t, 2, cfg.Catalog.Attempts)
	assert.InDelta(t, 0.8, cfg.Scoring.High, 1e-9)
	assert.False(t, cfg.Scoring.RequireProximity)
	assert.InDelta(t, 0.5, cfg.Scoring.Weights.Title, 1e-9)
	// Untouched keys keep their defaults.
	assert.InDelta(t, 0.30, cfg.Scoring.Weights.Distance, 1e-9)
	assert.InDelta(t, 0.45, cfg.Scoring.Warn, 1e-9)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()

	tests := map[string]string{
		"unknown provider": "[geocoder]\nprovider = \"bing\"\n",
		"zero attempts":    "[catalog]\nattempts = 0\n",
		"zero interval":    "[geocoder]\nmin_interval_ms = 0\n",
		"public nominatim": "[geocoder]\nmin_interval_ms = 500\n",
		"warn above high":  "[scoring]\nwarn = 0.9\n",
		"unknown key":      "[geocoder]\nprovder = \"google\"\n",
		"bad toml":         "[geocoder\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".toml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			_, _, _, err := config.Load(path)
			require.Error(t, err)
		})
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("GOOGLE_MAPS_API_KEY", "")
	t.Setenv("MAPIMPORT_USER_AGENT", "")

	path := filepath.Join(t.TempDir(), "sample.toml")
	require.NoError(t, os.WriteFile(path, []byte(config.SampleConfig()), 0o600))

	loaded, _, exists, err := config.Load(path)
	require.NoError(t, err)
	require.True(t, exists)

	missing := filepath.Join(t.TempDir(), "missing.toml")

	defaults, _, exists, err := config.Load(missing)
	require.NoError(t, err)
	require.False(t, exists)

	if diff := cmp.Diff(defaults, loaded); diff != "" {
		t.Errorf("sample config differs from defaults (-defaults +sample):\n%s", diff)
	}
}

func TestSelfHostedNominatimMayGoFaster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapimport.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[geocoder]
base_url = "http://localhost:8088"
min_interval_ms = 100
`), 0o600))

	cfg, _, _, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, cfg.Geocoder.MinInterval())
}
