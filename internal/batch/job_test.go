package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/passivleads/emailfinder/internal/progress"
	storageMemory "github.com/passivleads/emailfinder/internal/storage/memory"
)

type stubDiscoverer struct {
	mu      sync.Mutex
	calls   []string
	results map[string][]string
	fails   map[string]error
}

func newStubDiscoverer() *stubDiscoverer {
	return &stubDiscoverer{
		results: make(map[string][]string),
		fails:   make(map[string]error),
	}
}

func (d *stubDiscoverer) Discover(_ context.Context, address string) ([]string, error) {
	d.mu.Lock()
	d.calls = append(d.calls, address)
	d.mu.Unlock()
	if err, ok := d.fails[address]; ok {
		return nil, err
	}
	return d.results[address], nil
}

func (d *stubDiscoverer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type recordingSink struct {
	mu     sync.Mutex
	events []any
	fail   bool
}

func (s *recordingSink) Send(event any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("client gone")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) recorded() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.events...)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) byStage(stage progress.Stage) []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []progress.Event
	for _, evt := range e.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

func newTestJob(t *testing.T, b Batch, deps JobDeps) *Job {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	if deps.Clock == nil {
		deps.Clock = fixedClock{t: time.Unix(1700000000, 0).UTC()}
	}
	return NewJob(id, b, deps, JobConfig{Concurrency: 4})
}

func TestJobEndToEnd(t *testing.T) {
	t.Parallel()

	disco := newStubDiscoverer()
	disco.results["https://a.example"] = []string{"x@a.example"}
	disco.fails["https://b.example"] = errors.New("connection refused")

	sink := &recordingSink{}
	emitter := &recordingEmitter{}
	store := storageMemory.New()

	b := Batch{
		Columns: []string{"name", "website"},
		Rows: []Row{
			{"name": "A", "website": "a.example"},
			{"name": "Blank", "website": "  "},
			{"name": "B", "website": "b.example"},
		},
	}

	job := newTestJob(t, b, JobDeps{Discoverer: disco, Sink: sink, Emitter: emitter, Store: store})
	doc, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateComplete, job.State())

	// Output rows keep submission order regardless of completion order.
	lines := strings.Split(strings.TrimRight(doc, "\n"), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "name,website,email", lines[0])
	require.Contains(t, lines[1], "x@a.example")
	require.Equal(t, "Blank,  ,", lines[2])
	require.Contains(t, lines[3], "ERROR: ")
	require.Contains(t, lines[3], "connection refused")

	// Whitespace-only address never reaches the discoverer.
	require.Equal(t, 2, disco.callCount())

	events := sink.recorded()
	require.Len(t, events, 5) // init + 3 updates + complete

	init, ok := events[0].(InitEvent)
	require.True(t, ok)
	require.Equal(t, EventInit, init.Type)
	require.Equal(t, 3, init.TotalRows)
	require.Equal(t, "website", init.URLColumn)

	updates := 0
	for _, evt := range events[1 : len(events)-1] {
		upd, ok := evt.(UpdateEvent)
		require.True(t, ok)
		require.Equal(t, EventUpdate, upd.Type)
		require.Equal(t, 3, upd.Total)
		updates++
	}
	require.Equal(t, 3, updates)

	complete, ok := events[len(events)-1].(CompleteEvent)
	require.True(t, ok)
	require.Equal(t, doc, complete.CSV)

	require.Len(t, emitter.byStage(progress.StageJobStart), 1)
	require.Len(t, emitter.byStage(progress.StageRowDone), 3)
	require.Len(t, emitter.byStage(progress.StageJobDone), 1)

	// The assembled document is persisted once, keyed by content hash.
	require.Equal(t, 1, store.Len())
}

func TestJobHeaderOnlyBatchFailsBeforeDispatch(t *testing.T) {
	t.Parallel()

	disco := newStubDiscoverer()
	sink := &recordingSink{}
	emitter := &recordingEmitter{}

	b := Batch{Columns: []string{"name", "website"}}
	job := newTestJob(t, b, JobDeps{Discoverer: disco, Sink: sink, Emitter: emitter})

	_, err := job.Run(context.Background())
	require.ErrorIs(t, err, ErrEmptyBatch)
	require.Equal(t, StateFailed, job.State())
	require.Zero(t, disco.callCount())

	events := sink.recorded()
	require.Len(t, events, 1)
	errEvt, ok := events[0].(ErrorEvent)
	require.True(t, ok)
	require.Equal(t, EventError, errEvt.Type)
	require.Len(t, emitter.byStage(progress.StageJobError), 1)
}

func TestJobNoURLColumnFailsBeforeDispatch(t *testing.T) {
	t.Parallel()

	disco := newStubDiscoverer()
	sink := &recordingSink{}

	b := Batch{
		Columns: []string{"name", "phone"},
		Rows:    []Row{{"name": "Acme", "phone": "555-0100"}},
	}
	job := newTestJob(t, b, JobDeps{Discoverer: disco, Sink: sink})

	_, err := job.Run(context.Background())
	require.ErrorIs(t, err, ErrNoURLColumn)
	require.Zero(t, disco.callCount())
}

func TestJobRowFailureDoesNotAffectOtherRows(t *testing.T) {
	t.Parallel()

	disco := newStubDiscoverer()
	disco.results["https://good1.example"] = []string{"a@good1.example"}
	disco.fails["https://bad.example"] = errors.New("timeout")
	disco.results["https://good2.example"] = []string{"b@good2.example"}

	b := Batch{
		Columns: []string{"website"},
		Rows: []Row{
			{"website": "good1.example"},
			{"website": "bad.example"},
			{"website": "good2.example"},
		},
	}
	job := newTestJob(t, b, JobDeps{Discoverer: disco, Sink: &recordingSink{}})

	doc, err := job.Run(context.Background())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(doc, "\n"), "\n")
	require.Contains(t, lines[1], "a@good1.example")
	require.Contains(t, lines[2], "ERROR: ")
	require.Contains(t, lines[3], "b@good2.example")
}

func TestJobDeduplicatesEmailsPreservingOrder(t *testing.T) {
	t.Parallel()

	disco := newStubDiscoverer()
	disco.results["https://a.example"] = []string{"x@a.example", "y@a.example", "x@a.example"}

	b := Batch{Columns: []string{"website"}, Rows: []Row{{"website": "a.example"}}}
	sink := &recordingSink{}
	job := newTestJob(t, b, JobDeps{Discoverer: disco, Sink: sink})

	doc, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, doc, "\"x@a.example\ny@a.example\"")

	for _, evt := range sink.recorded() {
		if upd, ok := evt.(UpdateEvent); ok {
			require.Equal(t, 2, upd.EmailsCount)
		}
	}
}

func TestJobKeepsProcessingWhenSinkFails(t *testing.T) {
	t.Parallel()

	disco := newStubDiscoverer()
	disco.results["https://a.example"] = []string{"x@a.example"}

	emitter := &recordingEmitter{}

	b := Batch{
		Columns: []string{"website"},
		Rows:    []Row{{"website": "a.example"}, {"website": "a.example"}},
	}
	sink := &recordingSink{fail: true}
	job := newTestJob(t, b, JobDeps{Discoverer: disco, Sink: sink, Emitter: emitter})

	doc, err := job.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, doc)
	require.Len(t, emitter.byStage(progress.StageRowDone), 2)
}

func TestJobZeroEmailsIsCompletedNotFailed(t *testing.T) {
	t.Parallel()

	disco := newStubDiscoverer() // returns nil, nil for any address
	b := Batch{Columns: []string{"website"}, Rows: []Row{{"website": "a.example"}}}
	sink := &recordingSink{}
	job := newTestJob(t, b, JobDeps{Discoverer: disco, Sink: sink})

	doc, err := job.Run(context.Background())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(doc, "\n"), "\n")
	require.Equal(t, "a.example,", lines[1])

	for _, evt := range sink.recorded() {
		if upd, ok := evt.(UpdateEvent); ok {
			require.Equal(t, string(StatusCompleted), upd.Status)
			require.Zero(t, upd.EmailsCount)
		}
	}
}
