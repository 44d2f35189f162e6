package boundres

import "context"

// Subscription is the consumer side of a run. Updates are delivered in order from a single goroutine.
// Close must be called when the consumer stops observing; it is safe to call more than once.
type Subscription[T any] struct {
	updates chan Resource[T]
	cancel  context.CancelFunc
	done    chan struct{}
}

func newSubscription[T any](cancel context.CancelFunc) *Subscription[T] {
	return &Subscription[T]{
		updates: make(chan Resource[T]),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Updates returns the stream of load states. The channel is closed when the subscription ends.
func (s *Subscription[T]) Updates() <-chan Resource[T] {
	return s.updates
}

// Done is closed after the run loop has exited.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Close stops forwarding cache emissions, cancels an in-flight fetch and waits for the run loop to exit.
func (s *Subscription[T]) Close() {
	s.cancel()
	<-s.done
}

// Wait reads updates until the first terminal state and returns it.
// It consumes the stream, so it must not be combined with another reader of Updates.
// The subscription stays open; the caller still owns Close.
func (s *Subscription[T]) Wait(ctx context.Context) (Resource[T], error) {
	for {
		select {
		case <-ctx.Done():
			return Resource[T]{}, ctx.Err()
		case r, ok := <-s.updates:
			if !ok {
				return Resource[T]{}, ErrNotTerminal
			}

			if r.IsTerminal() {
				return r, nil
			}
		}
	}
}
