// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocache

import "context"

// Result is one reverse geocoding answer.
type Result struct {
	DisplayName string
	Address     Address
	// Raw is the response body as received, kept for reprocessing.
	Raw []byte
}

// ReverseGeocoder resolves a coordinate to a place. Implementations return a
// *GeocodingError on failure.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (*Result, error)
	// Name identifies the provider in cache entries.
	Name() string
}
