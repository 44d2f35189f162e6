// Package watch provides per-key observers for the cache stores.
//
// A watcher holds at most one pending value. A slow reader never blocks a publisher:
// an unread value is replaced by the newer one, so readers always see the latest state.
package watch

import (
	"context"
	"sync"
)

type watcher[T any] struct {
	ch chan *T
}

// Hub fans out values published for a key to the watchers of that key.
type Hub[K comparable, T any] struct {
	mu       sync.Mutex
	watchers map[K]map[*watcher[T]]struct{}
}

// New creates an empty Hub.
func New[K comparable, T any]() *Hub[K, T] {
	return &Hub[K, T]{
		mu:       sync.Mutex{},
		watchers: make(map[K]map[*watcher[T]]struct{}),
	}
}

// Subscribe registers a watcher for key and queues current as its first value.
// The returned channel is closed once ctx is done.
func (h *Hub[K, T]) Subscribe(ctx context.Context, key K, current *T) <-chan *T {
	w := &watcher[T]{ch: make(chan *T, 1)}
	w.ch <- current

	h.mu.Lock()
	ws, ok := h.watchers[key]
	if !ok {
		ws = make(map[*watcher[T]]struct{})
		h.watchers[key] = ws
	}
	ws[w] = struct{}{}
	h.mu.Unlock()

	context.AfterFunc(ctx, func() {
		h.remove(key, w)
	})

	return w.ch
}

// Publish delivers v to every watcher of key.
func (h *Hub[K, T]) Publish(key K, v *T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for w := range h.watchers[key] {
		select {
		case w.ch <- v:
		default:
			// drop the unread value, keep the latest
			select {
			case <-w.ch:
			default:
			}
			w.ch <- v
		}
	}
}

// Len returns the number of watchers of key.
func (h *Hub[K, T]) Len(key K) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.watchers[key])
}

func (h *Hub[K, T]) remove(key K, w *watcher[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ws, ok := h.watchers[key]
	if !ok {
		return
	}

	if _, ok = ws[w]; !ok {
		return
	}

	delete(ws, w)
	if len(ws) == 0 {
		delete(h.watchers, key)
	}

	close(w.ch)
}
