// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package similarity

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jcodagnone/mapimport/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metersNorth is roughly the latitude delta for one meter.
const metersNorth = 1.0 / 111195.0

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()

	s, err := NewScorer(DefaultConfig())
	require.NoError(t, err)

	return s
}

func TestExactExternalIDDominates(t *testing.T) {
	s := newTestScorer(t)

	c := &record.ImportCandidate{
		ExternalID: "osm-123", Source: "osm",
		Lat: 49.2827, Lon: -123.1207, Title: "Totem Pole",
	}
	// Far away and with another title: the identifier still wins.
	e := &record.ExistingRecord{
		ID: "a", ExternalID: "osm-123", Source: "osm",
		Lat: 49.2927, Lon: -123.1207, Title: "Something else",
	}

	r := s.Score(c, e)
	assert.True(t, r.ExternalIDMatch)
	assert.Equal(t, ExactDuplicate, r.Verdict)
	assert.InDelta(t, 1.0, r.CompositeScore, 1e-9)
	assert.True(t, r.Duplicate())
}

func TestExternalIDIsCaseSensitive(t *testing.T) {
	s := newTestScorer(t)

	c := &record.ImportCandidate{ExternalID: "OSM-123", Source: "osm", Lat: 49.2827, Lon: -123.1207}
	e := &record.ExistingRecord{ID: "a", ExternalID: "osm-123", Source: "osm", Lat: 49.2827, Lon: -123.1207}

	r := s.Score(c, e)
	assert.False(t, r.ExternalIDMatch)
	assert.NotEqual(t, ExactDuplicate, r.Verdict)
	assert.NotContains(t, r.Degraded, SignalExternalID)
}

func TestScenarioBNearbySimilarTitleMerges(t *testing.T) {
	s := newTestScorer(t)

	c := &record.ImportCandidate{
		Title: "The Bronze Horse",
		Lat:   49.2827 + 15*metersNorth, Lon: -123.1207,
		Tags: record.NewTags("tourism", "artwork", "artwork_type", "Statue"),
	}
	e := &record.ExistingRecord{
		ID: "rec-1", Title: "Bronze Horse",
		Lat: 49.2827, Lon: -123.1207,
		Tags: record.NewTags("tourism", "artwork", "artwork_type", "statue", "material", "bronze"),
	}

	r := s.Score(c, e)
	assert.InDelta(t, 15, r.DistanceMeters, 0.5)
	assert.InDelta(t, 0.75, r.TitleScore, 1e-9)
	assert.InDelta(t, 1.0, r.TagOverlapScore, 1e-9)
	assert.GreaterOrEqual(t, r.CompositeScore, s.Config().High)
	assert.Equal(t, LikelyDuplicate, r.Verdict)
	assert.Equal(t, []Signal{SignalExternalID}, r.Degraded)
	assert.True(t, r.ReducedConfidence())
}

func TestScenarioCBeyondCutoffIsDistinct(t *testing.T) {
	s := newTestScorer(t)

	c := &record.ImportCandidate{
		Title: "Bronze Horse",
		Lat:   49.2827 + 200*metersNorth, Lon: -123.1207,
		Tags: record.NewTags("tourism", "artwork"),
	}
	e := &record.ExistingRecord{
		ID: "rec-1", Title: "Bronze Horse",
		Lat: 49.2827, Lon: -123.1207,
		Tags: record.NewTags("tourism", "artwork"),
	}

	r := s.Score(c, e)
	assert.InDelta(t, 200, r.DistanceMeters, 1)
	assert.Zero(t, r.DistanceScore)
	assert.Equal(t, Distinct, r.Verdict)

	_, ok := s.Best(c, []*record.ExistingRecord{e})
	assert.False(t, ok)
}

func TestProximityNotRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireProximity = false
	cfg.Weights = Weights{Title: 0.5, Tags: 0.5}

	s, err := NewScorer(cfg)
	require.NoError(t, err)

	c := &record.ImportCandidate{Title: "Bronze Horse", Lat: 49.2827 + 200*metersNorth, Lon: -123.1207,
		Tags: record.NewTags("tourism", "artwork")}
	e := &record.ExistingRecord{ID: "x", Title: "Bronze Horse", Lat: 49.2827, Lon: -123.1207,
		Tags: record.NewTags("tourism", "artwork")}

	assert.Equal(t, LikelyDuplicate, s.Score(c, e).Verdict)
}

func TestPossibleDuplicateBand(t *testing.T) {
	s := newTestScorer(t)

	c := &record.ImportCandidate{
		Title: "Horse",
		Lat:   49.2827 + 10*metersNorth, Lon: -123.1207,
		Tags: record.NewTags("tourism", "artwork", "artist", "Someone"),
	}
	e := &record.ExistingRecord{
		ID: "rec-1", Title: "Bronze Horse",
		Lat: 49.2827, Lon: -123.1207,
		Tags: record.NewTags("tourism", "artwork"),
	}

	r := s.Score(c, e)
	assert.GreaterOrEqual(t, r.CompositeScore, s.Config().Warn)
	assert.Less(t, r.CompositeScore, s.Config().High)
	assert.Equal(t, PossibleDuplicate, r.Verdict)
}

func TestDegradedSignalsUseNeutralValues(t *testing.T) {
	s := newTestScorer(t)

	c := &record.ImportCandidate{Lat: 49.2827, Lon: -123.1207}
	e := &record.ExistingRecord{ID: "a", Lat: 49.2827, Lon: -123.1207}

	r := s.Score(c, e)
	assert.Equal(t, []Signal{SignalExternalID, SignalTitle, SignalTags}, r.Degraded)
	assert.InDelta(t, 0.5, r.TitleScore, 1e-9)
	assert.InDelta(t, 0.5, r.TagOverlapScore, 1e-9)
	// 0.10*0.5 + 0.30*1 + 0.35*0.5 + 0.25*0.5
	assert.InDelta(t, 0.65, r.CompositeScore, 1e-9)
	assert.Equal(t, PossibleDuplicate, r.Verdict)
}

func TestScoreIsDeterministic(t *testing.T) {
	s := newTestScorer(t)

	c := &record.ImportCandidate{
		Title: "Fuente de la Plaza",
		Lat:   -34.9058, Lon: -56.1913,
		Tags: record.NewTags("amenity", "fountain", "name", "Fuente"),
	}
	e := &record.ExistingRecord{
		ID: "r", Title: "Fuente Plaza",
		Lat: -34.90585, Lon: -56.19128,
		Tags: record.NewTags("amenity", "Fountain"),
	}

	first := s.Score(c, e)
	for range 50 {
		if diff := cmp.Diff(first, s.Score(c, e)); diff != "" {
			t.Fatalf("Score changed between calls (-first +got):\n%s", diff)
		}
	}
}

func TestBestTieBreak(t *testing.T) {
	s := newTestScorer(t)

	c := &record.ImportCandidate{Title: "Bronze Horse", Lat: 49.2827, Lon: -123.1207,
		Tags: record.NewTags("tourism", "artwork")}

	mk := func(id string) *record.ExistingRecord {
		return &record.ExistingRecord{ID: id, Title: "Bronze Horse", Lat: 49.2827, Lon: -123.1207,
			Tags: record.NewTags("tourism", "artwork")}
	}

	for _, order := range [][]string{{"b", "a", "c"}, {"c", "b", "a"}, {"a", "c", "b"}} {
		var existing []*record.ExistingRecord
		for _, id := range order {
			existing = append(existing, mk(id))
		}

		m, ok := s.Best(c, existing)
		require.True(t, ok)
		assert.Equal(t, "a", m.Record.ID, "order %v", order)
	}
}

func TestBestPrefersHigherScoreAndExact(t *testing.T) {
	s := newTestScorer(t)

	c := &record.ImportCandidate{ExternalID: "42", Source: "osm", Title: "Bronze Horse",
		Lat: 49.2827, Lon: -123.1207, Tags: record.NewTags("tourism", "artwork")}

	near := &record.ExistingRecord{ID: "a", Title: "Bronze Horse", Lat: 49.2827, Lon: -123.1207,
		Tags: record.NewTags("tourism", "artwork")}
	farther := &record.ExistingRecord{ID: "0", Title: "Bronze Horse", Lat: 49.2827 + 20*metersNorth, Lon: -123.1207,
		Tags: record.NewTags("tourism", "artwork")}

	m, ok := s.Best(c, []*record.ExistingRecord{farther, near})
	require.True(t, ok)
	assert.Equal(t, "a", m.Record.ID)

	exact := &record.ExistingRecord{ID: "z", ExternalID: "42", Source: "osm", Lat: 49.2830, Lon: -123.1207}

	m, ok = s.Best(c, []*record.ExistingRecord{farther, near, exact})
	require.True(t, ok)
	assert.Equal(t, "z", m.Record.ID)
	assert.Equal(t, ExactDuplicate, m.Result.Verdict)
}

func TestTitleSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, TitleSimilarity("bronze horse", "bronze horse"), 1e-9)
	assert.InDelta(t, 0.75, TitleSimilarity("the bronze horse", "bronze horse"), 1e-9)
	assert.InDelta(t, 0.0, TitleSimilarity("abc", "xyz"), 1e-9)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative weight", func(c *Config) { c.Weights.Title = -1 }},
		{"zero weights", func(c *Config) { c.Weights = Weights{} }},
		{"zero cutoff", func(c *Config) { c.CutoffMeters = 0 }},
		{"warn above high", func(c *Config) { c.Warn = 0.9 }},
		{"high above one", func(c *Config) { c.High = 1.5 }},
		{"neutral out of range", func(c *Config) { c.NeutralTags = -0.1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())

			_, err := NewScorer(cfg)
			require.Error(t, err)
		})
	}
}

func TestConfigValidateErrorOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{ExternalID: -1, Distance: -1, Title: -1, Tags: -1}

	want := "weights.external_id must be non-negative, got -1\n" +
		"weights.distance must be non-negative, got -1\n" +
		"weights.title must be non-negative, got -1\n" +
		"weights.tags must be non-negative, got -1\n" +
		"at least one weight must be positive"

	for range 20 {
		err := cfg.Validate()
		require.Error(t, err)
		assert.Equal(t, want, err.Error())
	}
}
