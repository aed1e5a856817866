// Package memory is a process-local Store for tests and single-binary
// setups where persistence only needs to outlive entry eviction, not the
// process.
package memory

import (
	"context"
	"sync"
	"time"

	st "github.com/unkn0wn-root/requery/store"
)

type item struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Store struct {
	mu sync.RWMutex
	m  map[string]item
}

var _ st.Store = (*Store)(nil)

func New() *Store {
	return &Store{m: make(map[string]item)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	it, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !it.exp.IsZero() && time.Now().After(it.exp) {
		s.mu.Lock()
		delete(s.m, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	// copy out; callers must not observe later mutations
	out := make([]byte, len(it.v))
	copy(out, it.v)
	return out, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.mu.Lock()
	s.m[key] = item{v: v, exp: exp}
	s.mu.Unlock()
	return true, nil
}

func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

// Close is a no-op: records stay readable so a store shared across client
// restarts keeps serving hydration.
func (s *Store) Close(context.Context) error { return nil }

// Len reports the number of stored records, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
