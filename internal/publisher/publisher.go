// Package publisher defines the outbound message publishing contract
// used to announce batch lifecycle transitions to external systems.
package publisher

import "context"

// Publisher delivers a JSON-serializable payload to a named topic and
// returns the broker-assigned message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
