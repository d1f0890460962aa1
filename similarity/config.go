// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package similarity

import (
	"errors"
	"fmt"
	"math"
)

// Weights of each signal in the composite score.
type Weights struct {
	ExternalID float64 `toml:"external_id" json:"external_id"`
	Distance   float64 `toml:"distance" json:"distance"`
	Title      float64 `toml:"title" json:"title"`
	Tags       float64 `toml:"tags" json:"tags"`
}

// Config tunes the scorer. The thresholds need calibration per dataset.
type Config struct {
	Weights Weights `toml:"weights" json:"weights"`

	// CutoffMeters is the radius beyond which the distance signal is zero.
	CutoffMeters float64 `toml:"cutoff_meters" json:"cutoff_meters"`

	// High and Warn split likely, possible and distinct verdicts.
	High float64 `toml:"high" json:"high"`
	Warn float64 `toml:"warn" json:"warn"`

	// Neutral values used when a signal cannot be computed.
	NeutralExternalID float64 `toml:"neutral_external_id" json:"neutral_external_id"`
	NeutralTitle      float64 `toml:"neutral_title" json:"neutral_title"`
	NeutralTags       float64 `toml:"neutral_tags" json:"neutral_tags"`

	// RequireProximity makes every non-exact pair beyond the cutoff distinct.
	RequireProximity bool `toml:"require_proximity" json:"require_proximity"`
}

// DefaultConfig returns the defaults used for point artwork datasets.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			ExternalID: 0.10,
			Distance:   0.30,
			Title:      0.35,
			Tags:       0.25,
		},
		CutoffMeters:      50,
		High:              0.70,
		Warn:              0.45,
		NeutralExternalID: 0.5,
		NeutralTitle:      0.5,
		NeutralTags:       0.5,
		RequireProximity:  true,
	}
}

func unit(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%s must be within [0,1], got %v", name, v)
	}

	return nil
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	var errs []error

	w := c.Weights
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"weights.external_id", w.ExternalID},
		{"weights.distance", w.Distance},
		{"weights.title", w.Title},
		{"weights.tags", w.Tags},
	} {
		if math.IsNaN(f.value) || f.value < 0 {
			errs = append(errs, fmt.Errorf("%s must be non-negative, got %v", f.name, f.value))
		}
	}

	if w.ExternalID+w.Distance+w.Title+w.Tags <= 0 {
		errs = append(errs, errors.New("at least one weight must be positive"))
	}

	if math.IsNaN(c.CutoffMeters) || c.CutoffMeters <= 0 {
		errs = append(errs, fmt.Errorf("cutoff_meters must be positive, got %v", c.CutoffMeters))
	}

	errs = append(errs,
		unit("high", c.High),
		unit("warn", c.Warn),
		unit("neutral_external_id", c.NeutralExternalID),
		unit("neutral_title", c.NeutralTitle),
		unit("neutral_tags", c.NeutralTags),
	)

	if c.Warn > c.High {
		errs = append(errs, fmt.Errorf("warn (%v) must not exceed high (%v)", c.Warn, c.High))
	}

	return errors.Join(errs...)
}
