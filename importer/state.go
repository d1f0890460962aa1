// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package importer

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jcodagnone/mapimport/storage"
)

// Outcome is the final result of processing one record.
type Outcome string

// Outcomes.
const (
	OutcomeCreated Outcome = "created"
	OutcomeMerged  Outcome = "merged"
	OutcomeSkipped Outcome = "skipped-for-review"
	OutcomeFailed  Outcome = "failed"
)

// Stage is a step of the per record state machine.
type Stage string

// Stages, in processing order. Failed is reachable from any of them.
const (
	StagePending    Stage = "pending"
	StageValidating Stage = "validating"
	StageGeocoding  Stage = "geocoding"
	StageQuerying   Stage = "querying"
	StageScoring    Stage = "scoring"
	StageCreating   Stage = "creating"
	StageMerging    Stage = "merging"
	StageReviewing  Stage = "reviewing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

// Batch statuses.
const (
	StatusRunning   BatchStatus = "running"
	StatusCompleted BatchStatus = "completed"
	StatusAborted   BatchStatus = "aborted"
)

// Event records the outcome of one record. Stage is the last stage reached,
// which for failures is where the record failed.
type Event struct {
	Seq       int       `json:"seq"`
	Index     int       `json:"index"`
	Key       string    `json:"key"`
	Outcome   Outcome   `json:"outcome"`
	Stage     Stage     `json:"stage"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BatchState is the persisted progress of a batch.
type BatchState struct {
	BatchID     string
	InputDigest string
	InputName   string
	Status      BatchStatus
	StartedAt   time.Time
	FinishedAt  time.Time
	Events      []Event

	byIndex map[int]int
}

func (b *BatchState) index() {
	b.byIndex = make(map[int]int, len(b.Events))
	for i, e := range b.Events {
		b.byIndex[e.Index] = i
	}
}

// Processed returns the event recorded for the record at index, if any.
func (b *BatchState) Processed(index int) (Event, bool) {
	if b.byIndex == nil {
		b.index()
	}

	i, ok := b.byIndex[index]
	if !ok {
		return Event{}, false
	}

	return b.Events[i], true
}

// LastProcessedIndex returns the highest processed index, or -1.
func (b *BatchState) LastProcessedIndex() int {
	last := -1
	for _, e := range b.Events {
		last = max(last, e.Index)
	}

	return last
}

// BatchSummary is a row of ListBatches.
type BatchSummary struct {
	BatchID     string
	InputDigest string
	InputName   string
	Status      BatchStatus
	StartedAt   time.Time
	FinishedAt  time.Time
	Counts      map[Outcome]int
}

// StateLog persists batch progress in the import_batches and import_events
// tables. Events are append only.
type StateLog struct {
	db  *sql.DB
	now func() time.Time
}

// NewStateLog creates a log over db. Call CreateSchema before use.
func NewStateLog(db *sql.DB) *StateLog {
	return &StateLog{db: db, now: time.Now}
}

// CreateSchema creates the state tables.
func (l *StateLog) CreateSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS import_batches (
			batch_id VARCHAR PRIMARY KEY,
			input_digest VARCHAR NOT NULL,
			input_name VARCHAR NOT NULL,
			status VARCHAR NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS import_events (
			batch_id VARCHAR NOT NULL,
			seq INTEGER NOT NULL,
			record_index INTEGER NOT NULL,
			record_key VARCHAR NOT NULL,
			outcome VARCHAR NOT NULL,
			stage VARCHAR NOT NULL,
			detail VARCHAR,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (batch_id, seq)
		);
	`)

	return storage.Wrap("creating import state tables", err)
}

// Open resumes the latest running or aborted batch for digest, or starts a
// new one. resumed reports which of the two happened.
func (l *StateLog) Open(ctx context.Context, digest, name string) (state *BatchState, resumed bool, err error) {
	state = &BatchState{InputDigest: digest}

	var finished sql.NullTime

	err = l.db.QueryRowContext(ctx, `
		SELECT batch_id, input_name, status, started_at, finished_at
		FROM import_batches
		WHERE input_digest = ? AND status IN ('running', 'aborted')
		ORDER BY started_at DESC
		LIMIT 1
	`, digest).Scan(&state.BatchID, &state.InputName, &state.Status, &state.StartedAt, &finished)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return l.begin(ctx, digest, name)
	case err != nil:
		return nil, false, storage.Wrap("reading import_batches", err)
	}

	if _, err := l.db.ExecContext(ctx,
		"UPDATE import_batches SET status = 'running', finished_at = NULL WHERE batch_id = ?",
		state.BatchID,
	); err != nil {
		return nil, false, storage.Wrap("reopening batch", err)
	}

	state.Status = StatusRunning

	if state.Events, err = l.events(ctx, state.BatchID); err != nil {
		return nil, false, err
	}

	state.index()

	return state, true, nil
}

func (l *StateLog) begin(ctx context.Context, digest, name string) (*BatchState, bool, error) {
	state := &BatchState{
		BatchID:     uuid.NewString(),
		InputDigest: digest,
		InputName:   name,
		Status:      StatusRunning,
		StartedAt:   l.now().UTC(),
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO import_batches (batch_id, input_digest, input_name, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, state.BatchID, digest, name, string(state.Status), state.StartedAt)
	if err != nil {
		return nil, false, storage.Wrap("inserting import_batches", err)
	}

	state.index()

	return state, false, nil
}

func (l *StateLog) events(ctx context.Context, batchID string) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT seq, record_index, record_key, outcome, stage, detail, created_at
		FROM import_events
		WHERE batch_id = ?
		ORDER BY seq
	`, batchID)
	if err != nil {
		return nil, storage.Wrap("reading import_events", err)
	}
	defer rows.Close()

	var events []Event

	for rows.Next() {
		var (
			e      Event
			detail sql.NullString
		)

		if err := rows.Scan(&e.Seq, &e.Index, &e.Key, &e.Outcome, &e.Stage, &detail, &e.CreatedAt); err != nil {
			return nil, storage.Wrap("scanning import_events", err)
		}

		e.Detail = detail.String
		events = append(events, e)
	}

	return events, storage.Wrap("iterating import_events", rows.Err())
}

// Append persists ev as the next event of the batch and adds it to state.
func (l *StateLog) Append(ctx context.Context, state *BatchState, ev Event) error {
	ev.Seq = len(state.Events) + 1
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = l.now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO import_events (batch_id, seq, record_index, record_key, outcome, stage, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, state.BatchID, ev.Seq, ev.Index, ev.Key, string(ev.Outcome), string(ev.Stage), ev.Detail, ev.CreatedAt)
	if err != nil {
		return storage.Wrap("inserting import_events", err)
	}

	if state.byIndex == nil {
		state.index()
	}

	state.Events = append(state.Events, ev)
	state.byIndex[ev.Index] = len(state.Events) - 1

	return nil
}

// Finish marks the batch completed or aborted.
func (l *StateLog) Finish(ctx context.Context, state *BatchState, status BatchStatus) error {
	finished := l.now().UTC()

	_, err := l.db.ExecContext(ctx,
		"UPDATE import_batches SET status = ?, finished_at = ? WHERE batch_id = ?",
		string(status), finished, state.BatchID,
	)
	if err != nil {
		return storage.Wrap("updating import_batches", err)
	}

	state.Status = status
	state.FinishedAt = finished

	return nil
}

// ListBatches returns every batch, newest first, with outcome counts.
func (l *StateLog) ListBatches(ctx context.Context) ([]BatchSummary, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT b.batch_id, b.input_digest, b.input_name, b.status, b.started_at, b.finished_at,
		       e.outcome, COUNT(e.seq)
		FROM import_batches b
		LEFT JOIN import_events e ON e.batch_id = b.batch_id
		GROUP BY ALL
		ORDER BY b.started_at DESC, b.batch_id, e.outcome
	`)
	if err != nil {
		return nil, storage.Wrap("listing import_batches", err)
	}
	defer rows.Close()

	var out []BatchSummary

	for rows.Next() {
		var (
			s        BatchSummary
			finished sql.NullTime
			outcome  sql.NullString
			count    int
		)

		if err := rows.Scan(&s.BatchID, &s.InputDigest, &s.InputName, &s.Status, &s.StartedAt, &finished, &outcome, &count); err != nil {
			return nil, storage.Wrap("scanning import_batches", err)
		}

		if n := len(out); n == 0 || out[n-1].BatchID != s.BatchID {
			s.FinishedAt = finished.Time
			s.Counts = make(map[Outcome]int)
			out = append(out, s)
		}

		if outcome.Valid {
			out[len(out)-1].Counts[Outcome(outcome.String)] = count
		}
	}

	return out, storage.Wrap("iterating import_batches", rows.Err())
}
