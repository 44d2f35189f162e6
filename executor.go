package boundres

import (
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Executor runs tasks off the run loop. Execute must not block the caller for the duration of the task,
// except for executors intended for tests.
type Executor interface {
	Execute(task func())
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(task func())

// Execute calls f(task).
func (f ExecutorFunc) Execute(task func()) {
	f(task)
}

// NewGoExecutor returns an executor that starts a goroutine per task.
func NewGoExecutor() Executor {
	return ExecutorFunc(func(task func()) {
		go task()
	})
}

// NewInstantExecutor returns an executor that runs tasks inline.
// Intended for tests, where it makes the order of fetch and save deterministic.
func NewInstantExecutor() Executor {
	return ExecutorFunc(func(task func()) {
		task()
	})
}

// PoolExecutor runs at most size tasks at the same time.
// Tasks start in submission order, so a pool of size 1 runs them one after another in FIFO order.
type PoolExecutor struct {
	sem *semaphore.Weighted

	mu    sync.Mutex
	queue []func()
}

// NewPoolExecutor creates a PoolExecutor. A pool of size 1 serializes tasks,
// which is what the disk executor uses by default.
func NewPoolExecutor(size int64) (*PoolExecutor, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPoolSize, size)
	}

	return &PoolExecutor{sem: semaphore.NewWeighted(size)}, nil
}

// Execute queues the task and returns immediately.
func (p *PoolExecutor) Execute(task func()) {
	p.mu.Lock()
	p.queue = append(p.queue, task)
	p.mu.Unlock()

	// A failed TryAcquire means every worker is busy, and a busy worker
	// checks the queue again before it gives its slot back.
	if p.sem.TryAcquire(1) {
		go p.work()
	}
}

// work runs queued tasks until the queue is empty, then releases its slot.
func (p *PoolExecutor) work() {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.sem.Release(1)
			p.mu.Unlock()
			return
		}

		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		task()
	}
}
