package session

import (
	"context"
	"sync"
	"time"
)

// memoryStore implements Store with process-local maps. It mirrors the
// subset of backend behavior the manager relies on: lazy expiry on access
// and whole-key drops. Used as the fallback when no durable backend is
// reachable, and in tests.
type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
	lists  map[string][]string
	expiry map[string]time.Time
	now    func() time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		values: make(map[string]string),
		lists:  make(map[string][]string),
		expiry: make(map[string]time.Time),
		now:    time.Now,
	}
}

// checkExpiry drops key if its expiry has passed. Caller must hold mu.
func (s *memoryStore) checkExpiry(key string) {
	exp, ok := s.expiry[key]
	if !ok || s.now().Before(exp) {
		return
	}
	delete(s.values, key)
	delete(s.lists, key)
	delete(s.expiry, key)
}

func (s *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkExpiry(key)
	if _, ok := s.values[key]; ok {
		return true, nil
	}
	_, ok := s.lists[key]
	return ok, nil
}

func (s *memoryStore) PutEx(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	s.expiry[key] = s.now().Add(ttl)
	return nil
}

func (s *memoryStore) Append(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkExpiry(key)
	s.lists[key] = append(s.lists[key], value)
	return nil
}

func (s *memoryStore) Refresh(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkExpiry(key)
	if _, ok := s.values[key]; !ok {
		if _, ok := s.lists[key]; !ok {
			return nil
		}
	}
	s.expiry[key] = s.now().Add(ttl)
	return nil
}

func (s *memoryStore) List(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkExpiry(key)
	list := s.lists[key]
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = nil
	s.lists = nil
	s.expiry = nil
	return nil
}
