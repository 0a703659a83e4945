// Package memory implements an in-memory blob store for tests.
package memory

import (
	"context"
	"sync"
)

// Object is one stored blob.
type Object struct {
	Path        string
	ContentType string
	Data        []byte
}

// BlobStore keeps objects in a map keyed by path.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// New creates an empty BlobStore.
func New() *BlobStore {
	return &BlobStore{objects: make(map[string]Object)}
}

// PutObject stores a copy of the data and returns a mem:// URI.
func (s *BlobStore) PutObject(_ context.Context, path, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = Object{
		Path:        path,
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
	}
	return "mem://" + path, nil
}

// Get returns the stored object for a path.
func (s *BlobStore) Get(path string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	return obj, ok
}

// Len reports how many objects have been stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
