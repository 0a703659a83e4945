package sinks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/passivleads/emailfinder/internal/progress"
	"github.com/passivleads/emailfinder/internal/publisher"
)

// JobSummary is the payload announced to subscribers when a batch job
// reaches a terminal state.
type JobSummary struct {
	JobID      string    `json:"job_id"`
	Result     string    `json:"result"`
	TotalRows  int       `json:"total_rows"`
	Processed  int       `json:"processed"`
	Emails     int       `json:"emails"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// PublishSink announces job completions through a publisher. Row-level
// events are intentionally not forwarded to keep broker volume bounded.
type PublishSink struct {
	pub    publisher.Publisher
	topic  string
	logger *zap.Logger
}

// NewPublishSink constructs a PublishSink for the given topic.
func NewPublishSink(pub publisher.Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{pub: pub, topic: topic, logger: logger}
}

// Consume publishes a JobSummary for every terminal event in the batch.
// The first publish error aborts the batch and is returned verbatim.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.Stage != progress.StageJobDone && evt.Stage != progress.StageJobError {
			continue
		}
		summary := JobSummary{
			JobID:      evt.JobUUID().String(),
			Result:     resultLabel(evt.Stage),
			TotalRows:  evt.Total,
			Processed:  evt.Processed,
			Emails:     evt.Emails,
			DurationMS: evt.Dur.Milliseconds(),
			Error:      evt.Note,
			FinishedAt: evt.TS,
		}
		id, err := s.pub.Publish(ctx, s.topic, summary)
		if err != nil {
			return err
		}
		s.logger.Debug("published job summary",
			zap.String("job_id", summary.JobID),
			zap.String("message_id", id),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}

func resultLabel(stage progress.Stage) string {
	if stage == progress.StageJobDone {
		return "success"
	}
	return "error"
}
