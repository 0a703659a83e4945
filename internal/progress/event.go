// Package progress defines the event primitives, non-blocking hub, and
// emitter interfaces that jobs use to report batch progress to
// observability sinks. The hub is decoupled from the client-facing
// stream: a dropped hub event never affects a response.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart Stage = "JOB_START"
	StageRowDone  Stage = "ROW_DONE"
	StageJobDone  Stage = "JOB_DONE"
	StageJobError Stage = "JOB_ERROR"
)

// Event captures a single milestone of batch progress.
type Event struct {
	// JobID identifies a job run using the 16-byte UUID form.
	JobID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or row milestone occurred.
	Stage Stage
	// Ordinal is the 1-based row position for ROW_DONE events.
	Ordinal int
	// Total is the batch size fixed at dispatch time.
	Total int
	// Processed is the running count of filled result slots.
	Processed int
	// Status carries the row outcome (skipped/completed/error) for
	// ROW_DONE, or the terminal result label for JOB_DONE.
	Status string
	// Emails counts addresses discovered for the row or whole job.
	Emails int
	// Site optionally scopes row events to a host label.
	Site string
	// Dur captures execution latency for rows and job completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == [16]byte{} {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StageRowDone:
		if e.Ordinal < 1 {
			return errors.New("row done requires a positive ordinal")
		}
		if e.Status == "" {
			return errors.New("row done requires a status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// JobUUID converts the binary job ID to uuid.UUID for sinks.
func (e Event) JobUUID() uuid.UUID {
	return uuid.UUID(e.JobID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
