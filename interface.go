package boundres

import "context"

// IMediator is an interface for loading a resource through the cache.
// For convenience of testing and replacing the implementation.
type IMediator[T any] interface {
	Run(ctx context.Context) *Subscription[T]
}

var _ IMediator[struct{}] = (*Mediator[struct{}, struct{}])(nil)
