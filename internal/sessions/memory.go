package sessions

import (
	"context"
	"sync"
	"time"
)

// MemoryStore backs sessions without redis (tests, single-process
// dev). Expiry is checked lazily on read.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]memoryEntry
}

type memoryEntry struct {
	rec Record
	exp time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Create(_ context.Context, tokenHash string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	s.m[tokenHash] = memoryEntry{rec: rec, exp: time.Now().Add(ttl)}
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Get(_ context.Context, tokenHash string) (Record, error) {
	now := time.Now()

	s.mu.RLock()
	e, ok := s.m[tokenHash]
	s.mu.RUnlock()

	if !ok {
		return Record{}, ErrNotFound
	}

	if now.After(e.exp) {
		s.mu.Lock()
		delete(s.m, tokenHash)
		s.mu.Unlock()
		return Record{}, ErrNotFound
	}

	return e.rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	delete(s.m, tokenHash)
	s.mu.Unlock()

	return nil
}
