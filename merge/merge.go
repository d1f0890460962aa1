// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package merge folds the tags of a duplicate candidate into the catalog
// record it duplicates without ever overwriting what the catalog holds.
package merge

import (
	"github.com/jcodagnone/mapimport/record"
)

// Kind of a merge log entry.
type Kind string

const (
	// Added marks a tag copied from the candidate.
	Added Kind = "added"
	// ConflictSkipped marks a candidate tag whose key the record already had.
	ConflictSkipped Kind = "conflict-skipped"
)

// LogEntry is one audit line of a merge.
type LogEntry struct {
	Kind           Kind   `json:"kind"`
	Key            string `json:"key"`
	ExistingValue  string `json:"existing_value,omitempty"`
	CandidateValue string `json:"candidate_value"`
	// SameValue is set on conflicts where both sides agree.
	SameValue bool `json:"same_value,omitempty"`
}

// Result of merging a candidate into an existing record.
type Result struct {
	RecordID string `json:"record_id"`
	// UpdatedTags is the full tag set after the merge.
	UpdatedTags record.Tags `json:"updated_tags"`
	// Added holds only the new tags, in candidate order.
	Added      record.Tags `json:"added"`
	Log        []LogEntry  `json:"log"`
	AddedCount int         `json:"added_count"`
}

// Conflicts returns the conflict-skipped entries whose values differ.
func (r *Result) Conflicts() []LogEntry {
	var out []LogEntry

	for _, e := range r.Log {
		if e.Kind == ConflictSkipped && !e.SameValue {
			out = append(out, e)
		}
	}

	return out
}

// Merge computes the tag delta of candidate over existing. Keys missing on
// existing are added; keys already present keep the existing value and are
// logged as conflict-skipped. Neither argument is modified.
func Merge(existing *record.ExistingRecord, candidate *record.ImportCandidate) Result {
	res := Result{
		RecordID:    existing.ID,
		UpdatedTags: existing.Tags.Clone(),
		Added:       record.NewTags(),
	}

	candidate.Tags.Each(func(key, value string) {
		if current, ok := existing.Tags.Get(key); ok {
			res.Log = append(res.Log, LogEntry{
				Kind:           ConflictSkipped,
				Key:            key,
				ExistingValue:  current,
				CandidateValue: value,
				SameValue:      current == value,
			})

			return
		}

		res.UpdatedTags.Set(key, value)
		res.Added.Set(key, value)
		res.Log = append(res.Log, LogEntry{Kind: Added, Key: key, CandidateValue: value})
		res.AddedCount++
	})

	return res
}
