package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory store, used in tests and dry runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	meta    map[string]ObjectInfo
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string][]byte),
		meta:    make(map[string]ObjectInfo),
		now:     time.Now,
	}
}

// Scheme returns "memory".
func (s *Memory) Scheme() string {
	return "memory"
}

// Add stores data under key, stamped with modified.
func (s *Memory) Add(key string, data []byte, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = append([]byte(nil), data...)
	s.meta[key] = ObjectInfo{
		ID:           key,
		Name:         baseName(key),
		Size:         int64(len(data)),
		LastModified: modified,
	}
}

// Bytes returns a copy of the object at key.
func (s *Memory) Bytes(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Keys returns every stored key, sorted.
func (s *Memory) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// List returns the objects directly under folder, sorted by name.
func (s *Memory) List(ctx context.Context, folder string, filter Filter) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := folderPrefix(folder)
	var results []ObjectInfo
	for key, info := range s.meta {
		if !strings.HasPrefix(key, prefix) || strings.Contains(key[len(prefix):], "/") {
			continue
		}
		if filter.Match(info) {
			results = append(results, info)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Name < results[j].Name
	})
	return results, nil
}

// Open returns a reader over the object id.
func (s *Memory) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	data, ok := s.Bytes(id)
	if !ok {
		return nil, downloadFailed(os.ErrNotExist, id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Put stores data under key.
func (s *Memory) Put(ctx context.Context, key string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return uploadFailed(err, key)
	}
	s.Add(key, b, s.now())
	return nil
}

// Close is a no-op.
func (s *Memory) Close() error {
	return nil
}
