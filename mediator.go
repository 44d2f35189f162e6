package boundres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
)

// Config holds the hooks a Mediator is built from.
// T is the cached record type, R is the type returned by the remote service.
type Config[T, R any] struct {
	// ReadCache opens an observable read of the cached value. The stream must emit the current value
	// (nil if there is none) first, then every change, and must be closed when ctx is done.
	ReadCache func(ctx context.Context) (<-chan *T, error)
	// ShouldFetch decides, given the first cached value, whether the remote service must be called.
	ShouldFetch func(data *T) bool
	// Fetch calls the remote service. Return ErrEmptyResponse for a successful call without payload.
	Fetch func(ctx context.Context) (R, error)
	// Save persists a fetched item into the cache. Runs on the disk executor.
	Save func(ctx context.Context, item R) error

	// MapFetchResult processes the fetched item before it is saved. Optional.
	MapFetchResult func(item R) R
	// OnFetchFailed is called on the run loop after a failed fetch. Optional.
	OnFetchFailed func(ctx context.Context, err error)
	// Equal compares cached values to suppress duplicate emissions. Defaults to reflect.DeepEqual.
	Equal func(a, b *T) bool
}

func (c Config[T, R]) validate() error {
	switch {
	case c.ReadCache == nil:
		return fmt.Errorf("%w: ReadCache", ErrMissingHook)
	case c.ShouldFetch == nil:
		return fmt.Errorf("%w: ShouldFetch", ErrMissingHook)
	case c.Fetch == nil:
		return fmt.Errorf("%w: Fetch", ErrMissingHook)
	case c.Save == nil:
		return fmt.Errorf("%w: Save", ErrMissingHook)
	}

	return nil
}

// Mediator coordinates a cached value and a remote fetch. The cache is the single source of truth:
// fetched data reaches the consumer only after it was saved and read back from the cache.
type Mediator[T, R any] struct {
	cfg Config[T, R]
	op  options
}

// New creates a new instance of Mediator.
func New[T, R any](cfg Config[T, R], opts ...Option) (*Mediator[T, R], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Equal == nil {
		cfg.Equal = func(a, b *T) bool { return reflect.DeepEqual(a, b) }
	}

	m := &Mediator[T, R]{
		cfg: cfg,
		op:  options{}, //nolint:exhaustruct // default values
	}

	for _, opt := range opts {
		opt(&m.op)
	}

	if m.op.log == nil {
		m.op.log = slog.New(slog.DiscardHandler)
	}

	if m.op.network == nil {
		m.op.network = NewGoExecutor()
	}

	if m.op.disk == nil {
		disk, err := NewPoolExecutor(1)
		if err != nil {
			return nil, err
		}
		m.op.disk = disk
	}

	return m, nil
}

// Run starts a new load and returns its subscription. Every call is an independent request:
// a retry is simply another call to Run.
func (m *Mediator[T, R]) Run(ctx context.Context) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	sub := newSubscription[T](cancel)

	r := &run[T, R]{
		m:       m,
		ctx:     ctx,
		sub:     sub,
		log:     m.op.log.With(slog.String("resource", m.op.name)),
		fetched: make(chan fetchResult[R], 1),
		saved:   make(chan error, 1),
	}

	go r.loop()

	return sub
}

type phase int

const (
	phaseDecide    phase = iota // waiting for the first cached value
	phaseCached                 // cache trusted, no fetch
	phaseFetching               // fetch in flight, cache forwarded as loading
	phaseSaving                 // fetch done, waiting for the save hook
	phaseSucceeded              // saved, cache forwarded as success
	phaseFailed                 // fetch or save failed, cache forwarded as error
)

type fetchResult[R any] struct {
	item R
	err  error
}

// run is the state of a single request. All fields are owned by the loop goroutine.
type run[T, R any] struct {
	m   *Mediator[T, R]
	ctx context.Context //nolint:containedctx // lifetime of the run
	sub *Subscription[T]
	log *slog.Logger

	phase   phase
	failure string
	cached  *T
	last    *Resource[T]

	source     <-chan *T
	stopSource context.CancelFunc

	fetched chan fetchResult[R]
	saved   chan error
}

func (r *run[T, R]) loop() {
	defer close(r.sub.done)
	defer close(r.sub.updates)
	defer r.detach()

	if !r.emit(Loading[T](nil)) || !r.attach(phaseDecide) {
		return
	}

	for {
		var ok bool

		select {
		case <-r.ctx.Done():
			return
		case v, open := <-r.source:
			if open {
				ok = r.onCacheValue(v)
			} else {
				ok = r.onSourceClosed()
			}
		case res := <-r.fetched:
			ok = r.onFetched(res)
		case err := <-r.saved:
			ok = r.onSaved(err)
		}

		if !ok {
			return
		}
	}
}

// attach opens a new cache stream and switches to phase p.
func (r *run[T, R]) attach(p phase) bool {
	r.detach()

	ctx, stop := context.WithCancel(r.ctx)

	source, err := r.m.cfg.ReadCache(ctx)
	if err != nil {
		stop()
		r.log.WarnContext(r.ctx, "cache read failed", slog.Any("error", err))
		r.phase = phaseFailed
		r.failure = err.Error()

		return r.emit(Error(r.failure, r.cached))
	}

	r.source = source
	r.stopSource = stop
	r.phase = p

	return true
}

func (r *run[T, R]) detach() {
	if r.stopSource != nil {
		r.stopSource()
	}

	r.source = nil
	r.stopSource = nil
}

func (r *run[T, R]) onCacheValue(v *T) bool {
	r.cached = v

	switch r.phase {
	case phaseDecide:
		if !r.m.cfg.ShouldFetch(v) {
			r.logHit(true)
			r.phase = phaseCached

			return r.emit(Success(v))
		}

		r.logHit(false)
		r.phase = phaseFetching
		r.fetch()

		return r.emit(Loading(v))
	case phaseFetching:
		return r.emit(Loading(v))
	case phaseCached, phaseSucceeded:
		return r.emit(Success(v))
	case phaseFailed:
		return r.emit(Error(r.failure, v))
	case phaseSaving:
	}

	return true
}

// onSourceClosed handles a cache stream that ended on its own.
// The run ends when nothing else can produce an emission.
func (r *run[T, R]) onSourceClosed() bool {
	r.detach()

	switch r.phase {
	case phaseDecide:
		r.phase = phaseFailed
		r.failure = ErrCacheClosed.Error()
		r.emit(Error[T](r.failure, nil))

		return false
	case phaseFetching, phaseSaving:
		return true
	case phaseCached, phaseSucceeded, phaseFailed:
	}

	return false
}

func (r *run[T, R]) fetch() {
	ctx := r.ctx
	fetched := r.fetched
	fetch := r.m.cfg.Fetch

	r.m.op.network.Execute(func() {
		item, err := fetch(ctx)
		fetched <- fetchResult[R]{item: item, err: err}
	})
}

func (r *run[T, R]) onFetched(res fetchResult[R]) bool {
	r.detach()

	if r.ctx.Err() != nil {
		return false
	}

	if r.m.op.logger != nil {
		r.m.op.logger.LogFetchResult(r.ctx, r.m.op.name, res.err)
	}

	switch {
	case res.err == nil:
		r.phase = phaseSaving
		r.save(res.item)

		return true
	case errors.Is(res.err, ErrEmptyResponse):
		return r.attach(phaseSucceeded)
	default:
		r.log.DebugContext(r.ctx, "fetch failed", slog.Any("error", res.err))

		if r.m.cfg.OnFetchFailed != nil {
			r.m.cfg.OnFetchFailed(r.ctx, res.err)
		}

		r.failure = res.err.Error()

		return r.attach(phaseFailed)
	}
}

// save persists the item. The save is not tied to the subscription: a fetched result
// still reaches the cache if the consumer goes away meanwhile.
func (r *run[T, R]) save(item R) {
	if r.m.cfg.MapFetchResult != nil {
		item = r.m.cfg.MapFetchResult(item)
	}

	ctx := context.WithoutCancel(r.ctx)
	saved := r.saved
	save := r.m.cfg.Save

	r.m.op.disk.Execute(func() {
		saved <- save(ctx, item)
	})
}

func (r *run[T, R]) onSaved(err error) bool {
	if err != nil {
		r.log.WarnContext(r.ctx, "save failed", slog.Any("error", err))
		r.failure = err.Error()

		return r.attach(phaseFailed)
	}

	return r.attach(phaseSucceeded)
}

// emit delivers res unless it repeats the previous emission. Returns false when the run is cancelled.
func (r *run[T, R]) emit(res Resource[T]) bool {
	if r.last != nil && r.same(*r.last, res) {
		return true
	}

	select {
	case <-r.ctx.Done():
		return false
	case r.sub.updates <- res:
		r.last = &res
		r.log.DebugContext(r.ctx, "resource state",
			slog.String("status", res.Status.String()),
			slog.Bool("has_data", res.Data != nil))

		return true
	}
}

func (r *run[T, R]) same(a, b Resource[T]) bool {
	return a.Status == b.Status && a.Message == b.Message && r.m.cfg.Equal(a.Data, b.Data)
}

func (r *run[T, R]) logHit(hit bool) {
	if r.m.op.logger != nil {
		r.m.op.logger.LogCacheHitRatio(r.ctx, r.m.op.name, hit)
	}
}
