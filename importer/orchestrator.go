// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package importer reconciles an input batch against the catalog. Records
// are processed one at a time, in input order: each is validated, geocoded
// through the cache, scored against the nearby catalog records and then
// created, merged or set aside for review. Every outcome is persisted before
// the next record starts, so an interrupted batch resumes where it stopped.
package importer

import (
	"context"
	"os"
	"time"

	"github.com/jcodagnone/mapimport/catalog"
	"github.com/jcodagnone/mapimport/geocache"
	"github.com/jcodagnone/mapimport/merge"
	"github.com/jcodagnone/mapimport/record"
	"github.com/jcodagnone/mapimport/similarity"
	"github.com/jcodagnone/mapimport/storage"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/sethvargo/go-retry"
)

// Geocoder resolves a coordinate to a place. *geocache.Cache implements it.
type Geocoder interface {
	Lookup(ctx context.Context, lat, lon float64) (*geocache.Entry, error)
}

// RetryConfig bounds the retries of catalog calls.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first one.
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryConfig returns the retry policy used by the CLI.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}
}

func (c RetryConfig) backoff() retry.Backoff {
	base := c.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}

	b := retry.NewExponential(base)
	if c.MaxDelay > 0 {
		b = retry.WithCappedDuration(c.MaxDelay, b)
	}

	return retry.WithMaxRetries(uint64(max(c.Attempts, 1)-1), b)
}

// Options configures an Orchestrator.
type Options struct {
	Retry RetryConfig
	// SearchRadius is the radius of the catalog query, zero uses the scorer
	// cutoff.
	SearchRadius float64
	// AddressTags adds the geocoded address as addr:* tags to the records
	// sent to the catalog.
	AddressTags bool
	// Progress shows a progress bar on stderr when it is a terminal.
	Progress bool
	Logger   *zerolog.Logger
}

// Orchestrator runs batches.
type Orchestrator struct {
	geocoder Geocoder
	catalog  catalog.Catalog
	scorer   *similarity.Scorer
	state    *StateLog
	opts     Options
	logger   *zerolog.Logger
}

// New creates an orchestrator.
func New(geo Geocoder, cat catalog.Catalog, scorer *similarity.Scorer, state *StateLog, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if opts.SearchRadius <= 0 {
		opts.SearchRadius = scorer.Config().CutoffMeters
	}

	return &Orchestrator{
		geocoder: geo,
		catalog:  cat,
		scorer:   scorer,
		state:    state,
		opts:     opts,
		logger:   logger,
	}
}

// recordResult is what processing one record produced.
type recordResult struct {
	outcome  Outcome
	stage    Stage
	err      error
	recordID string
	place    string
	match    *similarity.Match
	merge    *merge.Result
}

func (r *recordResult) fail(stage Stage, err error) *recordResult {
	r.outcome = OutcomeFailed
	r.stage = stage
	r.err = err

	return r
}

// abortError reports why a batch stopped before its end.
type abortError struct {
	err error
}

func (e *abortError) Error() string { return "batch aborted: " + e.err.Error() }

func (e *abortError) Unwrap() error { return e.err }

// Run processes batch, resuming a previous interrupted run of the same input.
// A report is returned even when the batch aborts; the error is then non nil
// and wraps the cause (a *storage.PersistenceError or a context error).
func (o *Orchestrator) Run(ctx context.Context, batch *Batch) (*Report, error) {
	report := newReport(batch)

	st, resumed, err := o.state.Open(ctx, batch.Digest, batch.Name)
	if err != nil {
		report.abort(err)

		return report, &abortError{err: err}
	}

	report.BatchID = st.BatchID
	report.Resumed = resumed
	report.StartedAt = st.StartedAt

	log := o.logger.With().Str("batch", st.BatchID).Logger()
	log.Info().
		Str("input", batch.Name).
		Int("records", len(batch.Candidates)).
		Bool("resumed", resumed).
		Int("already_processed", len(st.Events)).
		Msg("starting batch")

	var bar *progressbar.ProgressBar
	if o.opts.Progress && isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(len(batch.Candidates),
			progressbar.OptionSetDescription("Importing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	for _, c := range batch.Candidates {
		if bar != nil {
			_ = bar.Add(1)
		}

		if ev, ok := st.Processed(c.Index); ok {
			report.addPrevious(ev)

			continue
		}

		if err := ctx.Err(); err != nil {
			return o.abort(ctx, st, report, err)
		}

		res := o.process(ctx, c)

		if res.outcome == OutcomeFailed && isFatal(ctx, res.err) {
			return o.abort(ctx, st, report, res.err)
		}

		ev := Event{Index: c.Index, Key: c.Key(), Outcome: res.outcome, Stage: res.stage, Detail: res.detail(c)}
		if err := o.state.Append(ctx, st, ev); err != nil {
			return o.abort(ctx, st, report, err)
		}

		report.add(c, res)

		e := log.Info()
		if res.outcome == OutcomeFailed {
			e = log.Warn().Err(res.err)
		}

		if m := res.match; m != nil {
			e = e.Str("verdict", string(m.Result.Verdict)).
				Float64("score", m.Result.CompositeScore).
				Bool("reduced_confidence", m.Result.ReducedConfidence()).
				Strs("degraded", signalNames(m.Result.Degraded))
		}

		e.Int("index", c.Index).
			Str("key", c.Key()).
			Str("outcome", string(res.outcome)).
			Str("stage", string(res.stage)).
			Str("record_id", res.recordID).
			Str("place", res.place).
			Msg("record processed")
	}

	if err := o.state.Finish(ctx, st, StatusCompleted); err != nil {
		return o.abort(ctx, st, report, err)
	}

	report.FinishedAt = st.FinishedAt

	log.Info().
		Int("created", report.Created).
		Int("merged", report.Merged).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("batch completed")

	return report, nil
}

// isFatal reports whether err must stop the batch instead of failing one record.
func isFatal(ctx context.Context, err error) bool {
	return storage.IsPersistence(err) || ctx.Err() != nil
}

func (o *Orchestrator) abort(ctx context.Context, st *BatchState, report *Report, cause error) (*Report, error) {
	o.logger.Error().Err(cause).Str("batch", st.BatchID).Msg("aborting batch")

	if err := o.state.Finish(context.WithoutCancel(ctx), st, StatusAborted); err != nil {
		o.logger.Error().Err(err).Msg("marking batch as aborted")
	}

	report.abort(cause)
	report.FinishedAt = time.Now().UTC()

	return report, &abortError{err: cause}
}

// process runs the state machine of one record. Failures are returned in the
// result; process itself never aborts the batch.
func (o *Orchestrator) process(ctx context.Context, c *record.ImportCandidate) *recordResult {
	res := &recordResult{stage: StageValidating}

	if err := c.Validate(); err != nil {
		return res.fail(StageValidating, err)
	}

	res.stage = StageGeocoding

	entry, err := o.geocoder.Lookup(ctx, c.Lat, c.Lon)
	if err != nil {
		return res.fail(StageGeocoding, err)
	}

	res.place = entry.DisplayName

	res.stage = StageQuerying

	existing, err := o.findNear(ctx, c)
	if err != nil {
		return res.fail(StageQuerying, err)
	}

	res.stage = StageScoring

	match, found := o.scorer.Best(c, existing)

	payload := c
	if o.opts.AddressTags {
		payload = withAddressTags(c, entry)
	}

	switch {
	case !found:
		res.stage = StageCreating

		id, err := o.create(ctx, payload)
		if err != nil {
			return res.fail(StageCreating, err)
		}

		res.outcome = OutcomeCreated
		res.recordID = id

	case match.Result.Duplicate():
		res.stage = StageMerging
		res.match = &match
		res.recordID = match.Record.ID

		mr := merge.Merge(match.Record, payload)
		res.merge = &mr

		if mr.AddedCount > 0 {
			err := o.withRetry(ctx, func(ctx context.Context) error {
				return o.catalog.AppendTags(ctx, match.Record.ID, mr.Added)
			})
			if err != nil {
				return res.fail(StageMerging, err)
			}
		}

		res.outcome = OutcomeMerged

	default:
		res.stage = StageReviewing
		res.match = &match
		res.recordID = match.Record.ID
		res.outcome = OutcomeSkipped
	}

	res.stage = StageDone

	return res
}

func retryable(err error) error {
	if catalog.IsUnavailable(err) {
		return retry.RetryableError(err)
	}

	return err
}

func (o *Orchestrator) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, o.opts.Retry.backoff(), func(ctx context.Context) error {
		return retryable(fn(ctx))
	})
}

func (o *Orchestrator) findNear(ctx context.Context, c *record.ImportCandidate) ([]*record.ExistingRecord, error) {
	return retry.DoValue(ctx, o.opts.Retry.backoff(), func(ctx context.Context) ([]*record.ExistingRecord, error) {
		records, err := o.catalog.FindNear(ctx, c.Lat, c.Lon, o.opts.SearchRadius)

		return records, retryable(err)
	})
}

// create submits c, retrying on outages. A failed create may still have
// reached the catalog, so every retry first looks for a record c duplicates
// and adopts it instead of creating a second one.
func (o *Orchestrator) create(ctx context.Context, c *record.ImportCandidate) (string, error) {
	attempt := 0

	return retry.DoValue(ctx, o.opts.Retry.backoff(), func(ctx context.Context) (string, error) {
		attempt++

		if attempt > 1 {
			existing, err := o.catalog.FindNear(ctx, c.Lat, c.Lon, o.opts.SearchRadius)
			if err != nil {
				return "", retryable(err)
			}

			if m, ok := o.scorer.Best(c, existing); ok && m.Result.Duplicate() {
				o.logger.Warn().
					Str("key", c.Key()).
					Str("record_id", m.Record.ID).
					Msg("adopting record created by a failed attempt")

				return m.Record.ID, nil
			}
		}

		id, err := o.catalog.CreateRecord(ctx, c)

		return id, retryable(err)
	})
}

// withAddressTags returns a copy of c with the geocoded address added as
// addr:* tags. Tags c already has are kept.
func withAddressTags(c *record.ImportCandidate, e *geocache.Entry) *record.ImportCandidate {
	out := *c
	out.Tags = c.Tags.Clone()

	for _, kv := range [][2]string{
		{"addr:country", e.Address.Country},
		{"addr:state", e.Address.Region},
		{"addr:city", e.Address.City},
		{"addr:suburb", e.Address.Suburb},
		{"addr:street", e.Address.Road},
		{"addr:postcode", e.Address.Postcode},
	} {
		if kv[1] != "" && !out.Tags.Has(kv[0]) {
			out.Tags.Set(kv[0], kv[1])
		}
	}

	return &out
}

func signalNames(signals []similarity.Signal) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = string(s)
	}

	return out
}

func (r *recordResult) detail(c *record.ImportCandidate) string {
	switch r.outcome {
	case OutcomeFailed:
		return r.err.Error()
	case OutcomeSkipped:
		return encodeReview(c, r)
	default:
		return r.recordID
	}
}
