package batch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/passivleads/emailfinder/internal/progress"
)

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Discoverer finds email addresses for one normalized site address.
type Discoverer interface {
	Discover(ctx context.Context, address string) ([]string, error)
}

// EventSink receives the client-facing wire events in order. A sink
// error means the client is gone; the job keeps processing regardless
// so slots fill and observability stays accurate.
type EventSink interface {
	Send(event any) error
}

// ArtifactStore persists the assembled output document. Persistence is
// best effort and never affects the job result.
type ArtifactStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// DiscardSink drops every event. Used by the synchronous endpoint,
// which only wants the assembled document.
type DiscardSink struct{}

// Send implements EventSink.
func (DiscardSink) Send(any) error { return nil }

// JobConfig tunes one job run.
type JobConfig struct {
	// Concurrency bounds in-flight lookups; 0 means DefaultConcurrency.
	Concurrency int
	// SampleRows bounds column detection; 0 means DefaultSampleRows.
	SampleRows int
}

// JobDeps carries the collaborators a job needs. Store may be nil.
type JobDeps struct {
	Discoverer Discoverer
	Sink       EventSink
	Emitter    progress.Emitter
	Store      ArtifactStore
	Clock      Clock
	Logger     *zap.Logger
}

// Job runs one batch through detection, dispatch, streaming, and
// assembly. A Job is single use.
type Job struct {
	id    uuid.UUID
	batch Batch
	deps  JobDeps
	cfg   JobConfig
	state State
}

// NewJob builds a job for the given batch.
func NewJob(id uuid.UUID, b Batch, deps JobDeps, cfg JobConfig) *Job {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Sink == nil {
		deps.Sink = DiscardSink{}
	}
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = DefaultSampleRows
	}
	return &Job{id: id, batch: b, deps: deps, cfg: cfg, state: StateCreated}
}

// ID returns the job identifier.
func (j *Job) ID() uuid.UUID { return j.id }

// State returns the last lifecycle state the run reached. Run drives
// all transitions from a single goroutine.
func (j *Job) State() State { return j.state }

// Run executes the job to completion and returns the assembled output
// document. Row-level failures are folded into the document; only
// input-level problems or internal faults return an error, after the
// terminal error event has been sent.
func (j *Job) Run(ctx context.Context) (doc string, err error) {
	start := now(j.deps.Clock)

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job failed: %v", rec)
			j.deps.Logger.Error("job panicked", zap.String("job_id", j.id.String()), zap.Any("panic", rec))
			j.fail(start, err)
		}
	}()

	if j.batch.Size() == 0 {
		j.fail(start, ErrEmptyBatch)
		return "", ErrEmptyBatch
	}

	j.state = StateColumnDetectionPending
	urlColumn, err := DetectURLColumn(j.batch.Columns, j.batch.Rows, j.cfg.SampleRows)
	if err != nil {
		j.fail(start, err)
		return "", err
	}

	j.emit(progress.Event{
		Stage: progress.StageJobStart,
		Total: j.batch.Size(),
	})
	if err := j.deps.Sink.Send(newInitEvent(j.batch, urlColumn)); err != nil {
		j.deps.Logger.Debug("init event not delivered", zap.Error(err))
	}

	j.state = StateDispatched
	tasks := make([]Task, 0, j.batch.Size())
	for i, row := range j.batch.Rows {
		tasks = append(tasks, Task{Ordinal: i + 1, Row: row})
	}

	pool := NewPool(j.cfg.Concurrency, j.deps.Logger)
	completions := pool.Run(ctx, tasks, func(ctx context.Context, task Task) RowOutcome {
		return j.processRow(ctx, task, urlColumn)
	})

	j.state = StateStreaming
	slots := NewSlots(j.batch.Size())
	totalEmails := 0
	for outcome := range completions {
		processed, slotErr := slots.Set(outcome)
		if slotErr != nil {
			j.deps.Logger.Error("slot write rejected", zap.Error(slotErr))
			continue
		}
		totalEmails += len(outcome.Emails)
		j.emit(progress.Event{
			Stage:     progress.StageRowDone,
			Ordinal:   outcome.Ordinal,
			Total:     j.batch.Size(),
			Processed: processed,
			Status:    string(outcome.Status),
			Emails:    len(outcome.Emails),
			Site:      hostOf(outcome.Row[urlColumn]),
			Note:      outcome.Err,
		})
		if err := j.deps.Sink.Send(newUpdateEvent(j.batch.Size(), outcome)); err != nil {
			j.deps.Logger.Debug("update event not delivered",
				zap.Int("ordinal", outcome.Ordinal), zap.Error(err))
		}
	}

	j.state = StateFinalizing
	doc, err = Assemble(j.batch, slots.Outcomes())
	if err != nil {
		err = fmt.Errorf("assemble output: %w", err)
		j.fail(start, err)
		return "", err
	}
	j.persistArtifact(ctx, doc)

	if err := j.deps.Sink.Send(CompleteEvent{Type: EventComplete, CSV: doc}); err != nil {
		j.deps.Logger.Debug("complete event not delivered", zap.Error(err))
	}
	j.state = StateComplete
	j.emit(progress.Event{
		Stage:     progress.StageJobDone,
		Total:     j.batch.Size(),
		Processed: slots.Processed(),
		Emails:    totalEmails,
		Dur:       now(j.deps.Clock).Sub(start),
	})
	return doc, nil
}

func (j *Job) processRow(ctx context.Context, task Task, urlColumn string) RowOutcome {
	address, ok := NormalizeAddress(task.Row[urlColumn])
	if !ok {
		row := task.Row.Clone()
		row[EmailColumn] = ""
		return RowOutcome{Ordinal: task.Ordinal, Status: StatusSkipped, Row: row}
	}

	emails, err := j.deps.Discoverer.Discover(ctx, address)
	emails = dedupe(emails)
	row := task.Row.Clone()
	if err != nil {
		row[EmailColumn] = ErrorMarker(err.Error())
		return RowOutcome{
			Ordinal: task.Ordinal,
			Status:  StatusError,
			Row:     row,
			Err:     err.Error(),
		}
	}
	row[EmailColumn] = strings.Join(emails, "\n")
	return RowOutcome{Ordinal: task.Ordinal, Status: StatusCompleted, Row: row, Emails: emails}
}

// fail sends the terminal error event and emits JOB_ERROR. The wire
// event is sent first so a connected client learns the reason even if
// the hub is saturated.
func (j *Job) fail(start time.Time, cause error) {
	j.state = StateFailed
	if err := j.deps.Sink.Send(ErrorEvent{Type: EventError, Error: cause.Error()}); err != nil {
		j.deps.Logger.Debug("error event not delivered", zap.Error(err))
	}
	j.emit(progress.Event{
		Stage: progress.StageJobError,
		Total: j.batch.Size(),
		Note:  cause.Error(),
		Dur:   now(j.deps.Clock).Sub(start),
	})
}

func (j *Job) persistArtifact(ctx context.Context, doc string) {
	if j.deps.Store == nil {
		return
	}
	sum := sha256.Sum256([]byte(doc))
	path := fmt.Sprintf("%s/%s.csv", j.id, hex.EncodeToString(sum[:]))
	if _, err := j.deps.Store.PutObject(ctx, path, "text/csv", WithBOM(doc)); err != nil {
		j.deps.Logger.Warn("artifact persistence failed",
			zap.String("job_id", j.id.String()), zap.Error(err))
	}
}

func (j *Job) emit(evt progress.Event) {
	if j.deps.Emitter == nil {
		return
	}
	evt.JobID = progress.UUIDToBytes(j.id)
	evt.TS = now(j.deps.Clock)
	j.deps.Emitter.Emit(evt)
}

func now(clk Clock) time.Time {
	if clk == nil {
		return time.Now().UTC()
	}
	return clk.Now()
}

// dedupe removes repeated addresses while preserving first-discovery
// order.
func dedupe(emails []string) []string {
	if len(emails) < 2 {
		return emails
	}
	seen := make(map[string]struct{}, len(emails))
	out := emails[:0]
	for _, e := range emails {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

func hostOf(raw string) string {
	addr, ok := NormalizeAddress(raw)
	if !ok {
		return ""
	}
	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}
