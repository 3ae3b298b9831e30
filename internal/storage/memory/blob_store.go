// Package memory keeps lottery data and backup blobs in process memory for
// development mode and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
)

// BlobStore keeps uploaded objects keyed by path.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	fail error
}

// NewBlobStore creates an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// FailWith makes every subsequent PutObject return err.
func (s *BlobStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// PutObject stores a copy of the content and returns a memory:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if path == "" {
		return "", errors.New("path is required")
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.data[path] = body
	return "memory://" + path, nil
}

// Object returns a copy of a stored object.
func (s *BlobStore) Object(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[path]
	return slices.Clone(b), ok
}

// Paths lists the stored object paths in sorted order.
func (s *BlobStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for p := range s.data {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
