package sinks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/passivleads/emailfinder/internal/progress"
	"github.com/passivleads/emailfinder/internal/publisher/memory"
)

func TestPublishSinkForwardsOnlyTerminalEvents(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublishSink(pub, "job-events", zap.NewNop())

	start := newEvent(t, progress.StageJobStart)
	row := newEvent(t, progress.StageRowDone)
	row.Ordinal = 1
	row.Status = "completed"
	done := newEvent(t, progress.StageJobDone)
	done.Total = 10
	done.Processed = 10
	done.Emails = 4
	done.Dur = 1500 * time.Millisecond

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{start, row, done}))

	records := pub.Records()
	require.Len(t, records, 1)
	require.Equal(t, "job-events", records[0].Topic)

	var summary JobSummary
	require.NoError(t, json.Unmarshal(records[0].Data, &summary))
	require.Equal(t, done.JobUUID().String(), summary.JobID)
	require.Equal(t, "success", summary.Result)
	require.Equal(t, 10, summary.TotalRows)
	require.Equal(t, 4, summary.Emails)
	require.Equal(t, int64(1500), summary.DurationMS)
}

func TestPublishSinkReportsErrorResult(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublishSink(pub, "job-events", nil)

	failed := newEvent(t, progress.StageJobError)
	failed.Note = "no url column detected"

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{failed}))

	records := pub.Records()
	require.Len(t, records, 1)

	var summary JobSummary
	require.NoError(t, json.Unmarshal(records[0].Data, &summary))
	require.Equal(t, "error", summary.Result)
	require.Equal(t, "no url column detected", summary.Error)
}

func TestPublishSinkNilPublisherIsNoop(t *testing.T) {
	t.Parallel()

	sink := NewPublishSink(nil, "job-events", nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{newEvent(t, progress.StageJobDone)}))
}
