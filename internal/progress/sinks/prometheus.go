package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/passivleads/emailfinder/internal/progress"
)

// PrometheusSink exports batch progress metrics via Prometheus. It owns
// all collectors for jobs started/completed/running and per-row outcome
// counters.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	rowsProcessed *prometheus.CounterVec
	emailsFound   prometheus.Counter
	rowDuration   *prometheus.HistogramVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emailfinder_jobs_started_total",
			Help: "Total batch jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emailfinder_jobs_completed_total",
			Help: "Total batch jobs completed partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "emailfinder_jobs_running",
			Help: "Current number of running batch jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "emailfinder_job_runtime_seconds",
			Help:    "Wall time per completed batch job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		rowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emailfinder_rows_processed_total",
			Help: "Row completions partitioned by outcome status.",
		}, []string{"status"}),
		emailsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emailfinder_emails_found_total",
			Help: "Total email addresses discovered across all rows.",
		}),
		rowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "emailfinder_row_duration_seconds",
			Help:    "Per-row crawl duration partitioned by outcome status.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"status"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.rowsProcessed,
		s.emailsFound,
		s.rowDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageJobStart, progress.StageJobDone, progress.StageJobError:
		s.handleJobEvent(evt)
	case progress.StageRowDone:
		s.handleRowEvent(evt)
	}
}

func (s *PrometheusSink) handleJobEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageJobStart:
		s.jobsStarted.Inc()
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case progress.StageJobDone:
		s.jobsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case progress.StageJobError:
		s.jobsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StageJobStart && s.tracker.complete(evt.JobID) {
		s.jobsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleRowEvent(evt progress.Event) {
	status := evt.Status
	if status == "" {
		status = "unknown"
	}
	s.rowsProcessed.WithLabelValues(status).Inc()
	if evt.Emails > 0 {
		s.emailsFound.Add(float64(evt.Emails))
	}
	if evt.Dur > 0 {
		s.rowDuration.WithLabelValues(status).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[[16]byte]struct{})}
}

func (t *jobTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
