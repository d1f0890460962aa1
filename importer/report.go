// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jcodagnone/mapimport/merge"
	"github.com/jcodagnone/mapimport/record"
	"github.com/jcodagnone/mapimport/similarity"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// FailedRecord is a record that could not be reconciled.
type FailedRecord struct {
	Index int    `json:"index"`
	Key   string `json:"key"`
	Stage Stage  `json:"stage"`
	Error string `json:"error"`
}

// ReviewCase is a possible duplicate left for a human to decide.
type ReviewCase struct {
	Index    int    `json:"index"`
	Key      string `json:"key"`
	Title    string `json:"title,omitempty"`
	RecordID string `json:"record_id"`
	// ExistingTitle is the title of the catalog record.
	ExistingTitle string             `json:"existing_title,omitempty"`
	Result        *similarity.Result `json:"result,omitempty"`
}

// MergeEntry describes one merge into an existing record.
type MergeEntry struct {
	Index    int                `json:"index"`
	Key      string             `json:"key"`
	RecordID string             `json:"record_id"`
	Verdict  similarity.Verdict `json:"verdict"`
	Score    float64            `json:"score"`
	Added    int                `json:"added"`
	Log      []merge.LogEntry   `json:"log,omitempty"`
}

// Report summarizes a batch run.
type Report struct {
	BatchID     string    `json:"batch_id"`
	InputName   string    `json:"input_name"`
	InputDigest string    `json:"input_digest"`
	Resumed     bool      `json:"resumed"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`

	Total   int `json:"total"`
	Created int `json:"created"`
	Merged  int `json:"merged"`
	Skipped int `json:"skipped_for_review"`
	Failed  int `json:"failed"`
	// ResumedRecords counts records whose outcome comes from an earlier run.
	ResumedRecords int `json:"resumed_records"`

	TagsAdded    int `json:"tags_added"`
	TagConflicts int `json:"tag_conflicts"`

	Failures []FailedRecord `json:"failures"`
	Reviews  []ReviewCase   `json:"reviews"`
	Merges   []MergeEntry   `json:"merges"`

	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abort_reason,omitempty"`
}

func newReport(batch *Batch) *Report {
	return &Report{
		InputName:   batch.Name,
		InputDigest: batch.Digest,
		Total:       len(batch.Candidates),
		Failures:    []FailedRecord{},
		Reviews:     []ReviewCase{},
		Merges:      []MergeEntry{},
	}
}

// Succeeded counts the records that reached Done.
func (r *Report) Succeeded() int {
	return r.Created + r.Merged + r.Skipped
}

// Processed counts the records with an outcome.
func (r *Report) Processed() int {
	return r.Succeeded() + r.Failed
}

func (r *Report) abort(err error) {
	r.Aborted = true
	r.AbortReason = err.Error()
}

func (r *Report) count(o Outcome) {
	switch o {
	case OutcomeCreated:
		r.Created++
	case OutcomeMerged:
		r.Merged++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
}

func (r *Report) add(c *record.ImportCandidate, res *recordResult) {
	r.count(res.outcome)

	switch res.outcome {
	case OutcomeFailed:
		r.Failures = append(r.Failures, FailedRecord{
			Index: c.Index,
			Key:   c.Key(),
			Stage: res.stage,
			Error: res.err.Error(),
		})
	case OutcomeSkipped:
		result := res.match.Result
		r.Reviews = append(r.Reviews, ReviewCase{
			Index:         c.Index,
			Key:           c.Key(),
			Title:         c.Title,
			RecordID:      res.recordID,
			ExistingTitle: res.match.Record.Title,
			Result:        &result,
		})
	case OutcomeMerged:
		entry := MergeEntry{
			Index:    c.Index,
			Key:      c.Key(),
			RecordID: res.recordID,
			Verdict:  res.match.Result.Verdict,
			Score:    res.match.Result.CompositeScore,
		}

		if res.merge != nil {
			entry.Added = res.merge.AddedCount
			entry.Log = res.merge.Log
			r.TagsAdded += res.merge.AddedCount
			r.TagConflicts += len(res.merge.Conflicts())
		}

		r.Merges = append(r.Merges, entry)
	}
}

// addPrevious accounts for a record processed by an earlier run.
func (r *Report) addPrevious(ev Event) {
	r.ResumedRecords++
	r.count(ev.Outcome)

	switch ev.Outcome {
	case OutcomeFailed:
		r.Failures = append(r.Failures, FailedRecord{Index: ev.Index, Key: ev.Key, Stage: ev.Stage, Error: ev.Detail})
	case OutcomeSkipped:
		rc := ReviewCase{Index: ev.Index, Key: ev.Key}

		var d reviewDetail
		if err := json.Unmarshal([]byte(ev.Detail), &d); err == nil {
			rc.Title = d.Title
			rc.RecordID = d.RecordID
			rc.ExistingTitle = d.ExistingTitle
			rc.Result = d.Result
		}

		r.Reviews = append(r.Reviews, rc)
	}
}

// reviewDetail is the event detail stored for records left for review.
type reviewDetail struct {
	RecordID      string             `json:"record_id"`
	Title         string             `json:"title,omitempty"`
	ExistingTitle string             `json:"existing_title,omitempty"`
	Result        *similarity.Result `json:"result"`
}

func encodeReview(c *record.ImportCandidate, r *recordResult) string {
	d := reviewDetail{RecordID: r.recordID, Title: c.Title}
	if r.match != nil {
		d.ExistingTitle = r.match.Record.Title
		d.Result = &r.match.Result
	}

	data, err := json.Marshal(d)
	if err != nil {
		return r.recordID
	}

	return string(data)
}

// WriteJSON writes the machine readable report.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(r)
}

// Digest writes a human readable summary.
func (r *Report) Digest(w io.Writer) error {
	status := "completed"
	if r.Aborted {
		status = "aborted: " + r.AbortReason
	}

	summary := table.NewWriter()
	summary.SetStyle(table.StyleRounded)
	summary.SetTitle(fmt.Sprintf("Batch %s (%s)", r.BatchID, r.InputName))
	summary.AppendRows([]table.Row{
		{"Status", status},
		{"Records", r.Total},
		{"Created", r.Created},
		{"Merged", r.Merged},
		{"Skipped for review", r.Skipped},
		{"Failed", r.Failed},
		{"Succeeded", r.Succeeded()},
		{"From earlier runs", r.ResumedRecords},
		{"Tags added", r.TagsAdded},
		{"Tag conflicts kept", r.TagConflicts},
	})
	summary.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})

	if _, err := fmt.Fprintln(w, summary.Render()); err != nil {
		return err
	}

	if len(r.Failures) > 0 {
		tw := table.NewWriter()
		tw.SetStyle(table.StyleRounded)
		tw.SetTitle("Failed records")
		tw.AppendHeader(table.Row{"#", "Key", "Stage", "Error"})

		for _, f := range r.Failures {
			tw.AppendRow(table.Row{f.Index, f.Key, f.Stage, f.Error})
		}

		if _, err := fmt.Fprintln(w, tw.Render()); err != nil {
			return err
		}
	}

	if len(r.Reviews) > 0 {
		tw := table.NewWriter()
		tw.SetStyle(table.StyleRounded)
		tw.SetTitle("Possible duplicates")
		tw.AppendHeader(table.Row{"#", "Key", "Existing", "Score", "Distance (m)", "Title", "Tags", "Degraded"})

		for _, rc := range r.Reviews {
			row := table.Row{rc.Index, rc.Key, rc.RecordID, "", "", "", "", ""}
			if res := rc.Result; res != nil {
				row[3] = strconv.FormatFloat(res.CompositeScore, 'f', 3, 64)
				row[4] = strconv.FormatFloat(res.DistanceMeters, 'f', 1, 64)
				row[5] = strconv.FormatFloat(res.TitleScore, 'f', 2, 64)
				row[6] = strconv.FormatFloat(res.TagOverlapScore, 'f', 2, 64)
				row[7] = fmt.Sprint(res.Degraded)
			}

			tw.AppendRow(row)
		}

		if _, err := fmt.Fprintln(w, tw.Render()); err != nil {
			return err
		}
	}

	return nil
}
