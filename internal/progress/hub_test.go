package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func validEvent(t *testing.T) Event {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return Event{
		JobID: UUIDToBytes(id),
		TS:    time.Now().UTC(),
		Stage: StageJobStart,
		Total: 3,
	}
}

func TestHubDeliversEventsToSinks(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)

	for i := 0; i < 5; i++ {
		hub.Emit(validEvent(t))
	}

	require.Eventually(t, func() bool {
		return sink.count() == 5
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Close(context.Background()))
	require.True(t, sink.closed)
}

func TestHubEmitNeverBlocksWhenFull(t *testing.T) {
	t.Parallel()

	// A sink that blocks forever would wedge the flusher; the hub must
	// still accept (and then drop) events without blocking the caller.
	blocked := make(chan struct{})
	slowSink := sinkFunc(func(context.Context, []Event) error {
		<-blocked
		return nil
	})

	hub := NewHub(Config{BufferSize: 2, MaxBatchEvents: 1, MaxBatchWait: time.Millisecond, SinkTimeout: 50 * time.Millisecond}, slowSink)

	evt := validEvent(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			hub.Emit(evt)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a saturated hub")
	}
	close(blocked)
	_ = hub.Close(context.Background())
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)

	hub.Emit(Event{}) // missing ID and timestamp
	hub.Emit(validEvent(t))

	require.Eventually(t, func() bool {
		return sink.count() == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 1, sink.count())
}

func TestHubCloseFlushesPending(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: time.Hour}, sink) // never flush on timer

	for i := 0; i < 3; i++ {
		hub.Emit(validEvent(t))
	}
	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 3, sink.count())
	require.True(t, sink.closed)
}

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error { return f(ctx, batch) }
func (f sinkFunc) Close(context.Context) error                      { return nil }

func TestEventValidate(t *testing.T) {
	t.Parallel()

	evt := validEvent(t)
	require.NoError(t, evt.Validate())

	missingID := evt
	missingID.JobID = [16]byte{}
	require.Error(t, missingID.Validate())

	rowDone := evt
	rowDone.Stage = StageRowDone
	require.Error(t, rowDone.Validate()) // ordinal and status required

	rowDone.Ordinal = 1
	rowDone.Status = "completed"
	require.NoError(t, rowDone.Validate())

	unknown := evt
	unknown.Stage = Stage("BOGUS")
	require.Error(t, unknown.Validate())
}
