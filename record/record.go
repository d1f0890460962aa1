// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package record defines the records the import pipeline reconciles: the
// incoming candidates and the catalog entries they are matched against.
package record

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jcodagnone/mapimport/spatial"
)

// MaxTitleLength is the longest title accepted for a candidate, in runes.
const MaxTitleLength = 500

// ImportCandidate is one incoming record to reconcile.
type ImportCandidate struct {
	// Index is the position of the record in its input, starting at 0.
	Index      int      `json:"-"`
	ExternalID string   `json:"external_id,omitempty"`
	Source     string   `json:"source,omitempty"`
	Title      string   `json:"title,omitempty"`
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	Tags       Tags     `json:"tags"`
	Photos     []string `json:"photos,omitempty"`
}

// Point returns the candidate coordinate.
func (c *ImportCandidate) Point() spatial.Point {
	return spatial.Point{Lat: c.Lat, Lng: c.Lon}
}

// HasExternalID reports whether the candidate carries a source identifier.
func (c *ImportCandidate) HasExternalID() bool {
	return c.Source != "" && c.ExternalID != ""
}

// Key identifies the candidate inside its batch. Records with a source
// identifier use it, the rest fall back to their input position.
func (c *ImportCandidate) Key() string {
	if c.HasExternalID() {
		return c.Source + "/" + c.ExternalID
	}

	return fmt.Sprintf("#%d", c.Index)
}

// ExistingRecord is a catalog entry as already stored.
type ExistingRecord struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id,omitempty"`
	Source     string    `json:"source,omitempty"`
	Title      string    `json:"title,omitempty"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Tags       Tags      `json:"tags"`
	Photos     []string  `json:"photos,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Point returns the record coordinate.
func (r *ExistingRecord) Point() spatial.Point {
	return spatial.Point{Lat: r.Lat, Lng: r.Lon}
}

// ValidationError reports a malformed candidate.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError

	return errors.As(err, &ve)
}

// Validate checks the candidate can enter the pipeline.
func (c *ImportCandidate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || (c.Lat == 0 && c.Lon == 0) {
		return &ValidationError{Field: "coordinates", Reason: "missing"}
	}

	if !c.Point().Valid() {
		return &ValidationError{
			Field:  "coordinates",
			Reason: fmt.Sprintf("out of range (%f, %f)", c.Lat, c.Lon),
		}
	}

	if n := len([]rune(c.Title)); n > MaxTitleLength {
		return &ValidationError{
			Field:  "title",
			Reason: fmt.Sprintf("too long (%d > %d characters)", n, MaxTitleLength),
		}
	}

	return nil
}
