package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a single-process Store. Expiry is checked lazily on
// access, which is enough for the bounded best-effort cache semantics
// the callers rely on.
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string]string
	lists   map[string][]string
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		values:  make(map[string]string),
		lists:   make(map[string][]string),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryStore) expiredLocked(key string) bool {
	deadline, ok := s.expires[key]
	if !ok || s.now().Before(deadline) {
		return false
	}
	delete(s.values, key)
	delete(s.lists, key)
	delete(s.expires, key)
	return true
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiredLocked(key) {
		return "", ErrNotFound
	}
	value, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	if ttl > 0 {
		s.expires[key] = s.now().Add(ttl)
	} else {
		delete(s.expires, key)
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
		delete(s.lists, key)
		delete(s.expires, key)
	}
	return nil
}

func (s *MemoryStore) ListPrepend(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiredLocked(key)
	s.lists[key] = append([]string{value}, s.lists[key]...)
	return nil
}

func (s *MemoryStore) ListRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiredLocked(key) {
		return nil, nil
	}
	list := s.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (s *MemoryStore) ListSet(_ context.Context, key string, index int64, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiredLocked(key)
	list := s.lists[key]
	if index < 0 {
		index += int64(len(list))
	}
	if index < 0 || index >= int64(len(list)) {
		return fmt.Errorf("store: index %d out of range for %q", index, key)
	}
	list[index] = value
	return nil
}

func (s *MemoryStore) ListDelete(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiredLocked(key)
	list := s.lists[key]
	kept := list[:0]
	for _, entry := range list {
		if entry != value {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		delete(s.lists, key)
	} else {
		s.lists[key] = kept
	}
	return nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		if _, ok := s.lists[key]; !ok {
			return nil
		}
	}
	s.expires[key] = s.now().Add(ttl)
	return nil
}
