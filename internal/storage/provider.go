// Package storage defines the interfaces for a blob storage provider.
// This abstraction allows the application to be independent of a specific
// storage implementation (e.g., Google Cloud Storage or the local filesystem).
package storage

import "context"

// Provider defines the common interface for a blob storage provider.
type Provider interface {
	// PutObject uploads data under the given object path and returns a
	// provider-specific URI for the stored object.
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// NoOpProvider performs no operations. It is useful for running without
// artifact persistence.
type NoOpProvider struct{}

// PutObject for NoOpProvider does nothing and always succeeds.
func (NoOpProvider) PutObject(_ context.Context, path string, _ string, _ []byte) (string, error) {
	return "noop://" + path, nil
}
