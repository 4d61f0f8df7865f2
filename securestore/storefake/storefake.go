// Package storefake is a securestore.Store for tests: an in-memory store that counts writes
// and can be told to fail them.
package storefake

import (
	"context"
	"errors"
	"sync"

	"github.com/jrsteele09/go-auth-client/securestore"
)

type Store struct {
	*securestore.MemoryStore

	mu     sync.Mutex
	setErr error
	sets   int
}

var _ securestore.Store = (*Store)(nil)

func New() *Store {
	return &Store{MemoryStore: securestore.NewMemoryStore()}
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.sets++
	err := s.setErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.Set(ctx, key, value)
}

// FailSets makes every following Set return err; nil restores normal behaviour.
func (s *Store) FailSets(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErr = err
}

// Sets counts Set calls, including failed ones.
func (s *Store) Sets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

// Raw returns the stored value without going through the caller under test.
func (s *Store) Raw(key string) (string, bool) {
	v, err := s.MemoryStore.Get(context.Background(), key)
	if errors.Is(err, securestore.ErrNotFound) {
		return "", false
	}
	return v, err == nil
}
