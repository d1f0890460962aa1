// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package similarity

import "github.com/jcodagnone/mapimport/record"

// Match pairs an existing record with its score against a candidate.
type Match struct {
	Record *record.ExistingRecord `json:"record"`
	Result Result                 `json:"result"`
}

// ScoreAll scores c against every record, in the given order.
func (s *Scorer) ScoreAll(c *record.ImportCandidate, existing []*record.ExistingRecord) []Match {
	matches := make([]Match, 0, len(existing))
	for _, e := range existing {
		matches = append(matches, Match{Record: e, Result: s.Score(c, e)})
	}

	return matches
}

// Best picks the single record c most likely duplicates. Exact duplicates
// win, then the highest composite score; equal scores go to the smaller ID.
// Records whose verdict is Distinct are never picked; ok is false when none
// is left.
func (s *Scorer) Best(c *record.ImportCandidate, existing []*record.ExistingRecord) (best Match, ok bool) {
	for _, m := range s.ScoreAll(c, existing) {
		if m.Result.Verdict == Distinct {
			continue
		}

		if !ok || better(m, best) {
			best, ok = m, true
		}
	}

	return best, ok
}

func better(a, b Match) bool {
	aExact := a.Result.Verdict == ExactDuplicate
	bExact := b.Result.Verdict == ExactDuplicate

	if aExact != bExact {
		return aExact
	}

	if a.Result.CompositeScore != b.Result.CompositeScore {
		return a.Result.CompositeScore > b.Result.CompositeScore
	}

	return a.Record.ID < b.Record.ID
}
