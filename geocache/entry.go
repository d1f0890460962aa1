// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocache resolves coordinates to place names through a persistent
// cache in front of a rate-limited reverse geocoding service.
package geocache

import (
	"time"

	"github.com/jcodagnone/mapimport/spatial"
)

// SchemaVersion is stamped on every entry written by this version.
const SchemaVersion = 1

// Address holds the structured components of a reverse geocoding answer.
type Address struct {
	Country       string `json:"country,omitempty"`
	Region        string `json:"region,omitempty"`
	City          string `json:"city,omitempty"`
	Suburb        string `json:"suburb,omitempty"`
	Neighbourhood string `json:"neighbourhood,omitempty"`
	Road          string `json:"road,omitempty"`
	Postcode      string `json:"postcode,omitempty"`
}

// Entry is a cached reverse geocoding answer. Entries are written once per
// key and never updated.
type Entry struct {
	Key           spatial.Key `json:"key"`
	DisplayName   string      `json:"display_name"`
	Address       Address     `json:"address"`
	Provider      string      `json:"provider"`
	RawResponse   []byte      `json:"raw_response,omitempty"`
	SchemaVersion int         `json:"schema_version"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Point returns the rounded coordinate of the entry.
func (e *Entry) Point() spatial.Point {
	return e.Key.Point()
}
