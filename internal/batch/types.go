// Package batch implements the CSV batch pipeline: column detection,
// row normalization, the bounded worker pool, ordered result slots, and
// final assembly of the output table.
package batch

import (
	"errors"
	"fmt"
	"sync"
)

// EmailColumn is the output column added (or overwritten) for each row.
const EmailColumn = "email"

// Sentinel errors surfaced as job-level input failures.
var (
	ErrEmptyBatch  = errors.New("batch contains no data rows")
	ErrNoURLColumn = errors.New("no URL column detected")
)

// Row maps column names to cell values. The column set is fixed for the
// whole batch; ordering lives on Batch.Columns, not on the Row itself.
type Row map[string]string

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	cp := make(Row, len(r)+1)
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// Batch is an ordered table parsed from client input. Its size is fixed
// at submission time; rows are never added or removed mid-processing.
type Batch struct {
	Columns []string
	Rows    []Row
}

// Size returns the number of data rows.
func (b Batch) Size() int {
	return len(b.Rows)
}

// OutputColumns returns the original column order with EmailColumn
// appended when it is not already present.
func (b Batch) OutputColumns() []string {
	out := make([]string, 0, len(b.Columns)+1)
	out = append(out, b.Columns...)
	for _, c := range b.Columns {
		if c == EmailColumn {
			return out
		}
	}
	return append(out, EmailColumn)
}

// OutcomeStatus tags the result of processing one row. The values match
// the wire protocol's update event status field.
type OutcomeStatus string

// Row outcome statuses.
const (
	StatusSkipped   OutcomeStatus = "skipped"
	StatusCompleted OutcomeStatus = "completed"
	StatusError     OutcomeStatus = "error"
)

// RowOutcome is the result of processing one row. Exactly one outcome
// is produced per ordinal.
type RowOutcome struct {
	// Ordinal is the 1-based position of the row at submission time.
	Ordinal int
	Status  OutcomeStatus
	// Row carries the original cells plus the filled email column.
	Row Row
	// Emails holds the discovered addresses in first-discovery order.
	Emails []string
	// Err is the row-local failure message, set only for StatusError.
	Err string
}

// ErrorMarker formats the email-cell value for a failed row.
func ErrorMarker(msg string) string {
	return fmt.Sprintf("ERROR: %s", msg)
}

// State captures the lifecycle of a Job.
type State string

// Job lifecycle states. Failed is terminal and reachable from any
// state; per-row failures never move the job to Failed.
const (
	StateCreated                State = "created"
	StateColumnDetectionPending State = "column_detection_pending"
	StateDispatched             State = "dispatched"
	StateStreaming              State = "streaming"
	StateFinalizing             State = "finalizing"
	StateComplete               State = "complete"
	StateFailed                 State = "failed"
)

// Slots is the write-once-per-ordinal result store for a job. Each index
// is owned by exactly one task; the coarse lock guards only the
// write-then-increment pair, never held across network work.
type Slots struct {
	mu        sync.Mutex
	outcomes  []*RowOutcome
	processed int
}

// NewSlots allocates a slot array for a batch of n rows.
func NewSlots(n int) *Slots {
	return &Slots{outcomes: make([]*RowOutcome, n)}
}

// Set records the outcome for its ordinal and returns the running
// processed count. Writing the same ordinal twice, or an ordinal out of
// range, is a programming error and is reported rather than silently
// overwriting.
func (s *Slots) Set(outcome RowOutcome) (int, error) {
	idx := outcome.Ordinal - 1
	if idx < 0 || idx >= len(s.outcomes) {
		return 0, fmt.Errorf("slot ordinal %d out of range 1..%d", outcome.Ordinal, len(s.outcomes))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcomes[idx] != nil {
		return s.processed, fmt.Errorf("slot %d written twice", outcome.Ordinal)
	}
	s.outcomes[idx] = &outcome
	s.processed++
	return s.processed, nil
}

// Processed returns how many slots have been filled so far.
func (s *Slots) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}

// Full reports whether every slot has been written.
func (s *Slots) Full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed == len(s.outcomes)
}

// Outcomes returns the filled slots in ordinal order. It must only be
// called after Full() reports true; unfilled slots are skipped so a
// partial read never panics.
func (s *Slots) Outcomes() []RowOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RowOutcome, 0, len(s.outcomes))
	for _, o := range s.outcomes {
		if o != nil {
			out = append(out, *o)
		}
	}
	return out
}
