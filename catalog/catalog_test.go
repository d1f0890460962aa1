// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/mapimport/record"
	"github.com/jcodagnone/mapimport/utils/httputils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metersNorth = 1.0 / 111195.0

func setupTestCatalog(t *testing.T) *SQLCatalog {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c := NewSQLCatalog(db)
	require.NoError(t, c.CreateSchema(context.Background()))

	return c
}

func candidate(title string, lat, lon float64, kv ...string) *record.ImportCandidate {
	return &record.ImportCandidate{Title: title, Lat: lat, Lon: lon, Tags: record.NewTags(kv...)}
}

func TestSQLCatalogFindNear(t *testing.T) {
	ctx := context.Background()
	c := setupTestCatalog(t)

	nearID, err := c.CreateRecord(ctx, candidate("Near", 49.2827+10*metersNorth, -123.1207))
	require.NoError(t, err)

	closestID, err := c.CreateRecord(ctx, candidate("Closest", 49.2827, -123.1207, "tourism", "artwork"))
	require.NoError(t, err)

	_, err = c.CreateRecord(ctx, candidate("Far", 49.2827+200*metersNorth, -123.1207))
	require.NoError(t, err)

	got, err := c.FindNear(ctx, 49.2827, -123.1207, 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, closestID, got[0].ID)
	assert.Equal(t, nearID, got[1].ID)
	assert.Equal(t, map[string]string{"tourism": "artwork"}, got[0].Tags.Map())

	got, err = c.FindNear(ctx, 49.2827, -123.1207, 500)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = c.FindNear(ctx, -34.9, -56.16, 50)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLCatalogCreateKeepsFields(t *testing.T) {
	ctx := context.Background()
	c := setupTestCatalog(t)

	cand := &record.ImportCandidate{
		ExternalID: "osm-123", Source: "osm", Title: "Totem Pole",
		Lat: 49.2827, Lon: -123.1207,
		Tags:   record.NewTags("tourism", "artwork", "artwork_type", "totem"),
		Photos: []string{"https://example.org/a.jpg"},
	}

	id, err := c.CreateRecord(ctx, cand)
	require.NoError(t, err)

	got, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "osm-123", got.ExternalID)
	assert.Equal(t, "osm", got.Source)
	assert.Equal(t, "Totem Pole", got.Title)
	assert.Equal(t, []string{"tourism", "artwork_type"}, got.Tags.Keys())
	assert.Equal(t, []string{"https://example.org/a.jpg"}, got.Photos)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = c.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLCatalogCreateRejectsInvalid(t *testing.T) {
	c := setupTestCatalog(t)

	_, err := c.CreateRecord(context.Background(), candidate("x", 95, 0))
	require.Error(t, err)
	assert.True(t, record.IsValidation(err))
	assert.False(t, IsUnavailable(err))
}

func TestSQLCatalogAppendTagsNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	c := setupTestCatalog(t)

	id, err := c.CreateRecord(ctx, candidate("Horse", 49.2827, -123.1207, "material", "bronze"))
	require.NoError(t, err)

	require.NoError(t, c.AppendTags(ctx, id, record.NewTags("material", "stone", "artist", "Jane")))

	got, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"material", "artist"}, got.Tags.Keys())
	assert.Equal(t, map[string]string{"material": "bronze", "artist": "Jane"}, got.Tags.Map())

	// Nothing new is a no-op.
	require.NoError(t, c.AppendTags(ctx, id, record.NewTags("artist", "Other")))

	err = c.AppendTags(ctx, "missing", record.NewTags("a", "b"))
	require.ErrorIs(t, err, ErrNotFound)
}

func setupTestServer(t *testing.T) (*SQLCatalog, *Client) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	store := setupTestCatalog(t)
	srv := httptest.NewServer(NewServer(store, nil).Handler())
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, httputils.ClientOptions{UserAgent: "mapimport-test"})
	require.NoError(t, err)

	return store, client
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, client := setupTestServer(t)

	id, err := client.CreateRecord(ctx, &record.ImportCandidate{
		ExternalID: "osm-1", Source: "osm", Title: "Bronze Horse",
		Lat: 49.2827, Lon: -123.1207,
		Tags: record.NewTags("tourism", "artwork"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.NoError(t, client.AppendTags(ctx, id, record.NewTags("material", "bronze", "tourism", "museum")))

	near, err := client.FindNear(ctx, 49.2827+5*metersNorth, -123.1207, 50)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, id, near[0].ID)
	assert.Equal(t, "osm-1", near[0].ExternalID)
	assert.Equal(t, map[string]string{"tourism": "artwork", "material": "bronze"}, near[0].Tags.Map())

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	near, err = client.FindNear(ctx, 0.5, 0.5, 50)
	require.NoError(t, err)
	assert.Empty(t, near)
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	_, client := setupTestServer(t)

	err := client.AppendTags(ctx, "missing", record.NewTags("a", "b"))
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsUnavailable(err))

	_, err = client.CreateRecord(ctx, candidate("bad", 91, 0))
	require.Error(t, err)

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusBadRequest, ce.StatusCode)
	assert.False(t, IsUnavailable(err))

	_, err = client.FindNear(ctx, 0, 0, 10000)
	require.Error(t, err)
	assert.False(t, IsUnavailable(err))
}

func TestClientUnavailable(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++

		switch calls {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"records":"not a list"}`)
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, httputils.ClientOptions{})
	require.NoError(t, err)

	for range 2 {
		_, err = client.FindNear(context.Background(), 0, 0, 10)
		require.Error(t, err)
		assert.True(t, IsUnavailable(err), err)
	}

	_, err = client.FindNear(context.Background(), 0, 0, 10)
	require.Error(t, err)
	assert.False(t, IsUnavailable(err))
	assert.True(t, strings.Contains(err.Error(), "malformed"), err)
}

func TestClientTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := NewClient(url, httputils.ClientOptions{})
	require.NoError(t, err)

	_, err = client.CreateRecord(context.Background(), candidate("x", 1, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCatalogUnavailable))
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("not a url", httputils.ClientOptions{})
	require.Error(t, err)
}
