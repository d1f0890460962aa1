// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineDistance(t *testing.T) {
	a := &Point{Lat: 49.2827, Lng: -123.1207}
	b := &Point{Lat: 49.2827, Lng: -123.1207}
	assert.InDelta(t, 0, a.HaversineDistance(b), 1e-9)

	// one degree of latitude is ~111.2km
	c := &Point{Lat: 50.2827, Lng: -123.1207}
	assert.InDelta(t, 111195, a.HaversineDistance(c), 10)
}

func TestPointValid(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"vancouver", Point{Lat: 49.2827, Lng: -123.1207}, true},
		{"lat out of range", Point{Lat: 91, Lng: 0}, false},
		{"lng out of range", Point{Lat: 0, Lng: -181}, false},
		{"nan", Point{Lat: math.NaN(), Lng: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Valid())
		})
	}
}

func TestKeyOf(t *testing.T) {
	k := KeyOf(Point{Lat: 49.28270049, Lng: -123.12070051})
	assert.Equal(t, Key{Lat: 49282700, Lng: -123120701}, k)
	assert.Equal(t, "49.282700,-123.120701", k.String())

	// points closer than the key precision collapse to the same key
	assert.Equal(t, k, KeyOf(Point{Lat: 49.2827001, Lng: -123.1207006}))
}

func TestCoveringCells(t *testing.T) {
	p := Point{Lat: 49.2827, Lng: -123.1207}

	origin, err := Cell(p)
	require.NoError(t, err)

	cells, err := CoveringCells(p, 50)
	require.NoError(t, err)
	assert.True(t, slices.Contains(cells, origin))

	// a point 40m north must land in one of the covering cells
	near, err := Cell(Point{Lat: p.Lat + 0.00036, Lng: p.Lng})
	require.NoError(t, err)
	assert.True(t, slices.Contains(cells, near))
}
