package storage

import (
	"context"
	"strings"
	"sync"
)

type memoryEntry struct {
	data []byte
	mime string
}

// MemoryStore holds assets in process memory. Contents are lost on restart,
// which is the intended lifecycle for session-scoped generation results.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	baseURL string
}

// NewMemoryStore creates an empty in-memory store. baseURL is prepended to
// keys when a shareable URL is requested.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, mime string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := append([]byte(nil), data...)
	s.entries[key] = memoryEntry{data: buf, mime: mime}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return append([]byte(nil), entry.data...), entry.mime, nil
}

func (s *MemoryStore) URL(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.entries[key]; !ok {
		return "", ErrNotFound
	}
	return s.baseURL + "/" + key, nil
}

var _ AssetStore = (*MemoryStore)(nil)
