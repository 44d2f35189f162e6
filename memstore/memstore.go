// Package memstore is an in-memory observable cache store for the boundres mediator.
package memstore

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/n-r-w/boundres/internal/watch"
)

// Store is a size-bounded LRU store whose reads are observable.
// Values are copied on write, so callers may reuse the pointer they passed in.
type Store[K comparable, T any] struct {
	mu    sync.Mutex
	cache *lru.Cache[K, *T]
	hub   *watch.Hub[K, T]
}

// New creates a new Store holding at most size entries.
func New[K comparable, T any](size int) (*Store[K, T], error) {
	hub := watch.New[K, T]()

	// The cache calls back after releasing its own lock; every mutation holds s.mu, so evictions
	// are published in mutation order.
	cache, err := lru.NewWithEvict[K, *T](size, func(key K, _ *T) {
		hub.Publish(key, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	return &Store[K, T]{
		mu:    sync.Mutex{},
		cache: cache,
		hub:   hub,
	}, nil
}

// Read returns a stream with the current value for key (nil if absent) followed by every change.
// The stream is closed when ctx is done.
func (s *Store[K, T]) Read(ctx context.Context, key K) (<-chan *T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, _ := s.cache.Peek(key)

	return s.hub.Subscribe(ctx, key, current), nil
}

// Get returns the current value for key.
func (s *Store[K, T]) Get(key K) (*T, bool) {
	return s.cache.Get(key)
}

// Write stores a copy of value under key and notifies readers.
func (s *Store[K, T]) Write(ctx context.Context, key K, value *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if value == nil {
		s.Delete(key)
		return nil
	}

	v := *value

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Add(key, &v)
	s.hub.Publish(key, &v)

	return nil
}

// Delete removes key and notifies readers with nil.
func (s *Store[K, T]) Delete(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cache.Remove(key) {
		return false
	}

	// Remove fires the eviction callback, which already published nil.
	return true
}

// Len returns the number of stored entries.
func (s *Store[K, T]) Len() int {
	return s.cache.Len()
}

// Purge removes every entry.
func (s *Store[K, T]) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Purge()
}
