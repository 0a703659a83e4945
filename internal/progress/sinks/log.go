// Package sinks provides progress.Sink implementations: structured
// logs, Prometheus collectors, and a Pub/Sub publisher for job
// lifecycle notifications.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/passivleads/emailfinder/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. It is
// useful during development or audits where no other sink is wired.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("progress event",
			zap.String("job_id", evt.JobUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.Int("ordinal", evt.Ordinal),
			zap.Int("processed", evt.Processed),
			zap.Int("total", evt.Total),
			zap.String("status", evt.Status),
			zap.Int("emails", evt.Emails),
			zap.String("site", evt.Site),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
