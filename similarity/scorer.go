// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package similarity scores how likely an incoming record duplicates a
// catalog record.
//
// Titles are compared with a normalized Levenshtein ratio: both titles are
// folded to lower-case ASCII, punctuation is replaced by spaces and the score
// is 1 - distance/longest, counted in runes.
package similarity

import (
	"github.com/jcodagnone/mapimport/record"
	"github.com/jcodagnone/mapimport/utils/textutils"
)

// Verdict is the categorical outcome of scoring a pair.
type Verdict string

// Verdicts, strongest first.
const (
	ExactDuplicate    Verdict = "exact_duplicate"
	LikelyDuplicate   Verdict = "likely_duplicate"
	PossibleDuplicate Verdict = "possible_duplicate"
	Distinct          Verdict = "distinct"
)

// Signal names one input of the composite score.
type Signal string

// Signals.
const (
	SignalExternalID Signal = "external_id"
	SignalDistance   Signal = "distance"
	SignalTitle      Signal = "title"
	SignalTags       Signal = "tags"
)

// Result is the outcome of scoring one (candidate, existing) pair.
type Result struct {
	ExternalIDMatch bool    `json:"external_id_match"`
	DistanceMeters  float64 `json:"distance_meters"`
	DistanceScore   float64 `json:"distance_score"`
	TitleScore      float64 `json:"title_score"`
	TagOverlapScore float64 `json:"tag_overlap_score"`
	CompositeScore  float64 `json:"composite_score"`
	Verdict         Verdict `json:"verdict"`
	// Degraded lists the signals that fell back to their neutral value.
	Degraded []Signal `json:"degraded,omitempty"`
}

// ReducedConfidence reports whether any signal was degraded.
func (r Result) ReducedConfidence() bool {
	return len(r.Degraded) > 0
}

// Duplicate reports whether the verdict allows an automatic merge.
func (r Result) Duplicate() bool {
	return r.Verdict == ExactDuplicate || r.Verdict == LikelyDuplicate
}

// Scorer computes Results. It holds no state besides its configuration.
type Scorer struct {
	cfg Config
}

// NewScorer validates cfg and returns a scorer.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Scorer{cfg: cfg}, nil
}

// Config returns the scorer configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Score compares a candidate with an existing record. It never fails: a
// signal whose inputs are missing contributes its neutral value and is listed
// in Result.Degraded.
func (s *Scorer) Score(c *record.ImportCandidate, e *record.ExistingRecord) Result {
	var r Result

	extScore := s.externalIDSignal(c, e, &r)
	if r.ExternalIDMatch {
		r.DistanceMeters, r.DistanceScore = s.distanceSignal(c, e, &r)
		r.TitleScore = s.titleSignal(c.Title, e.Title, &r)
		r.TagOverlapScore = s.tagSignal(c.Tags, e.Tags, &r)
		r.CompositeScore = 1
		r.Verdict = ExactDuplicate

		return r
	}

	var distanceOK bool

	r.DistanceMeters, r.DistanceScore = s.distanceSignal(c, e, &r)
	distanceOK = !r.degraded(SignalDistance)

	r.TitleScore = s.titleSignal(c.Title, e.Title, &r)
	r.TagOverlapScore = s.tagSignal(c.Tags, e.Tags, &r)

	w := s.cfg.Weights
	r.CompositeScore = clamp01(
		w.ExternalID*extScore +
			w.Distance*r.DistanceScore +
			w.Title*r.TitleScore +
			w.Tags*r.TagOverlapScore,
	)

	switch {
	case s.cfg.RequireProximity && distanceOK && r.DistanceMeters > s.cfg.CutoffMeters:
		r.Verdict = Distinct
	case r.CompositeScore >= s.cfg.High:
		r.Verdict = LikelyDuplicate
	case r.CompositeScore >= s.cfg.Warn:
		r.Verdict = PossibleDuplicate
	default:
		r.Verdict = Distinct
	}

	return r
}

func (r *Result) degrade(sig Signal) {
	r.Degraded = append(r.Degraded, sig)
}

func (r *Result) degraded(sig Signal) bool {
	for _, d := range r.Degraded {
		if d == sig {
			return true
		}
	}

	return false
}

// externalIDSignal returns 0 for two different identifiers of the same
// source and the neutral value when the identifiers cannot be compared.
func (s *Scorer) externalIDSignal(c *record.ImportCandidate, e *record.ExistingRecord, r *Result) float64 {
	if !c.HasExternalID() || e.Source == "" || e.ExternalID == "" || c.Source != e.Source {
		r.degrade(SignalExternalID)

		return s.cfg.NeutralExternalID
	}

	if c.ExternalID == e.ExternalID {
		r.ExternalIDMatch = true

		return 1
	}

	return 0
}

func (s *Scorer) distanceSignal(c *record.ImportCandidate, e *record.ExistingRecord, r *Result) (float64, float64) {
	cp, ep := c.Point(), e.Point()
	if !cp.Valid() || !ep.Valid() {
		r.degrade(SignalDistance)

		return 0, 0
	}

	d := cp.HaversineDistance(&ep)
	if d >= s.cfg.CutoffMeters {
		return d, 0
	}

	return d, 1 - d/s.cfg.CutoffMeters
}

func (s *Scorer) titleSignal(a, b string, r *Result) float64 {
	na, nb := textutils.NormalizeTitle(a), textutils.NormalizeTitle(b)
	if na == "" || nb == "" {
		r.degrade(SignalTitle)

		return s.cfg.NeutralTitle
	}

	return TitleSimilarity(na, nb)
}

// TitleSimilarity is the normalized Levenshtein ratio of two normalized titles.
func TitleSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}

	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}

	return 1 - float64(textutils.Levenshtein(a, b))/float64(longest)
}

func (s *Scorer) tagSignal(candidate, existing record.Tags, r *Result) float64 {
	if candidate.Len() == 0 {
		r.degrade(SignalTags)

		return s.cfg.NeutralTags
	}

	matched := 0

	candidate.Each(func(k, v string) {
		if ev, ok := existing.Get(k); ok && textutils.LowerASCIIFolding(ev) == textutils.LowerASCIIFolding(v) {
			matched++
		}
	})

	return float64(matched) / float64(candidate.Len())
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
