// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagsNormalization(t *testing.T) {
	var tags Tags
	tags.Set("  Material ", " bronze ")
	tags.Set("ARTIST", "Unknown")
	tags.Set("", "dropped")
	tags.Set("material", "steel")

	assert.Equal(t, []string{"material", "artist"}, tags.Keys())

	v, ok := tags.Get("MATERIAL")
	require.True(t, ok)
	assert.Equal(t, "steel", v)
	assert.Equal(t, 2, tags.Len())
}

func TestTagsJSONKeepsOrder(t *testing.T) {
	var tags Tags
	require.NoError(t, json.Unmarshal([]byte(`{"Zeta":"1","alpha":" 2 ","height":12,"gone":null}`), &tags))

	assert.Equal(t, []string{"zeta", "alpha", "height"}, tags.Keys())

	data, err := json.Marshal(tags)
	require.NoError(t, err)
	assert.JSONEq(t, `{"zeta":"1","alpha":"2","height":"12"}`, string(data))
	assert.True(t, strings.HasPrefix(string(data), `{"zeta"`))
}

func TestTagsFromMapIsDeterministic(t *testing.T) {
	m := map[string]string{"b": "2", "a": "1", "c": "3"}
	for range 10 {
		assert.Equal(t, []string{"a", "b", "c"}, TagsFromMap(m).Keys())
	}
}

func TestTagsClone(t *testing.T) {
	orig := NewTags("a", "1")
	clone := orig.Clone()
	clone.Set("b", "2")

	assert.Equal(t, 1, orig.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestCandidateKey(t *testing.T) {
	c := &ImportCandidate{Index: 7, Source: "osm", ExternalID: "osm-123"}
	assert.Equal(t, "osm/osm-123", c.Key())

	c = &ImportCandidate{Index: 7, Source: "osm"}
	assert.Equal(t, "#7", c.Key())
}

func TestCandidateValidate(t *testing.T) {
	tests := []struct {
		name  string
		c     ImportCandidate
		field string
	}{
		{"valid", ImportCandidate{Lat: 49.2827, Lon: -123.1207, Title: "Totem Pole"}, ""},
		{"missing coordinates", ImportCandidate{Title: "x"}, "coordinates"},
		{"nan", ImportCandidate{Lat: math.NaN(), Lon: 1}, "coordinates"},
		{"out of range", ImportCandidate{Lat: 95, Lon: 1}, "coordinates"},
		{"title too long", ImportCandidate{Lat: 1, Lon: 1, Title: strings.Repeat("a", MaxTitleLength+1)}, "title"},
		{"external id without source", ImportCandidate{Lat: 1, Lon: 1, ExternalID: "1"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.field == "" {
				assert.NoError(t, err)

				return
			}

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.True(t, IsValidation(err))
		})
	}
}
