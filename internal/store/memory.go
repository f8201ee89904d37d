package store

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store used when no Redis URL is configured and in tests
type MemoryStore struct {
	mu    sync.Mutex
	kv    map[string]entry
	lists map[string][][]byte
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		kv:    make(map[string]entry),
		lists: make(map[string][][]byte),
		now:   time.Now,
	}
}

// SetClock replaces the time source, letting tests age keys
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(e.value), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, value, ttl)
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.put(key, value, ttl)
	return true, nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	delete(s.lists, key)
	return nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok || !bytes.Equal(e.value, expected) {
		return false, nil
	}
	delete(s.kv, key)
	return true, nil
}

func (s *MemoryStore) Update(_ context.Context, key string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current []byte
	if e, ok := s.live(key); ok {
		current = bytes.Clone(e.value)
	}
	next, err := fn(current)
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	s.put(key, next, 0)
	return nil
}

func (s *MemoryStore) PushCapped(_ context.Context, key string, value []byte, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append([][]byte{bytes.Clone(value)}, s.lists[key]...)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	s.lists[key] = list
	return nil
}

func (s *MemoryStore) Range(_ context.Context, key string, n int) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	if n > 0 && n < len(list) {
		list = list[:n]
	}
	out := make([][]byte, len(list))
	for i, v := range list {
		out[i] = bytes.Clone(v)
	}
	return out, nil
}

// live returns the entry for key, dropping it when expired. Callers hold mu.
func (s *MemoryStore) live(key string) (entry, bool) {
	e, ok := s.kv[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.kv, key)
		return entry{}, false
	}
	return e, true
}

func (s *MemoryStore) put(key string, value []byte, ttl time.Duration) {
	e := entry{value: bytes.Clone(value)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.kv[key] = e
}
