// Package memory holds the in-process stores: the result store served to
// consumers and a blob store used for failure artifacts in development.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// DefaultBlobLimit is how many artifacts NewBlobStore keeps.
const DefaultBlobLimit = 64

// BlobStore keeps the most recent artifacts in memory and returns memory://
// URIs. Once the limit is reached the oldest write is evicted.
type BlobStore struct {
	mu    sync.RWMutex
	data  map[string]blob
	order []string
	limit int
}

type blob struct {
	contentType string
	body        []byte
}

// NewBlobStore creates a blob store holding up to DefaultBlobLimit artifacts.
func NewBlobStore() *BlobStore {
	return NewBlobStoreWithLimit(DefaultBlobLimit)
}

// NewBlobStoreWithLimit creates a blob store holding up to limit artifacts.
// A non-positive limit falls back to DefaultBlobLimit.
func NewBlobStoreWithLimit(limit int) *BlobStore {
	if limit <= 0 {
		limit = DefaultBlobLimit
	}
	return &BlobStore{data: make(map[string]blob), limit: limit}
}

// PutObject stores a copy of the reader's content under path.
func (s *BlobStore) PutObject(_ context.Context, path string, contentType string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[path]; ok {
		s.forget(path)
	}
	s.data[path] = blob{contentType: contentType, body: body}
	s.order = append(s.order, path)
	for len(s.order) > s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.data, oldest)
	}
	return "memory://" + path, nil
}

func (s *BlobStore) forget(path string) {
	for i, p := range s.order {
		if p == path {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// Object returns the stored body and content type for path.
func (s *BlobStore) Object(path string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[path]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), b.body...), b.contentType, true
}

// Paths lists stored paths, sorted.
func (s *BlobStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for p := range s.data {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
