// Package stream implements the server-sent-events framing used to
// push live batch progress to HTTP clients.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot
// flush, which means no event would reach the client before the job ends.
var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

// Writer frames JSON payloads as SSE data events over an HTTP response.
// Send is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares the response for an event stream and returns a
// Writer. Headers are written immediately so proxies disable buffering
// before the first event.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// Send marshals the event to JSON, writes one SSE data frame, and
// flushes it to the client.
func (s *Writer) Send(event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}
