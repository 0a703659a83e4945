// Package memory contains an in-memory publisher for tests and
// single-process deployments without a broker.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Record captures one publish call with the payload already encoded,
// mirroring what a real broker would receive on the wire.
type Record struct {
	Topic string
	Data  []byte
}

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu      sync.RWMutex
	records []Record
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish encodes the payload, records it, and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, Record{Topic: topic, Data: data})
	return fmt.Sprintf("memory-%d", len(p.records)), nil
}

// Records returns copies of the recorded publishes.
func (p *Publisher) Records() []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Record, len(p.records))
	copy(out, p.records)
	return out
}
