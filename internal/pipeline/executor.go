package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Executor runs node invocations the scheduler hands it. Submit never
// blocks on the work itself.
type Executor interface {
	Submit(fn func())
	Close() error
}

// InlineExecutor runs work on the submitting goroutine. Work submitted
// while a drain is in progress is queued and run by that drain, so
// invocations never nest and run strictly in submission order.
type InlineExecutor struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

// NewInlineExecutor creates an executor for deterministic single-threaded
// scheduling.
func NewInlineExecutor() *InlineExecutor {
	return &InlineExecutor{}
}

// Submit implements Executor.
func (e *InlineExecutor) Submit(fn func()) {
	e.mu.Lock()
	e.queue = append(e.queue, fn)
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	for len(e.queue) > 0 {
		next := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()
		next()
		e.mu.Lock()
	}
	e.running = false
	e.mu.Unlock()
}

// Close implements Executor.
func (e *InlineExecutor) Close() error { return nil }

// PoolExecutor runs work on a fixed set of worker goroutines fed from an
// unbounded queue, so a worker can submit follow-up work without blocking.
type PoolExecutor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	group  *errgroup.Group
}

// NewPoolExecutor starts workers goroutines. They exit when Close is called
// and the queue is drained, or when ctx is done.
func NewPoolExecutor(ctx context.Context, workers int) *PoolExecutor {
	if workers < 1 {
		workers = 1
	}
	e := &PoolExecutor{}
	e.cond = sync.NewCond(&e.mu)

	g, ctx := errgroup.WithContext(ctx)
	e.group = g
	stop := context.AfterFunc(ctx, func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		e.cond.Broadcast()
	})
	for range workers {
		g.Go(e.work)
	}
	go func() {
		_ = g.Wait()
		stop()
	}()
	return e
}

func (e *PoolExecutor) work() error {
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return nil
		}
		next := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()
		next()
	}
}

// Submit implements Executor. Work submitted after Close is dropped.
func (e *PoolExecutor) Submit(fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, fn)
	e.mu.Unlock()
	e.cond.Signal()
}

// Close stops accepting work and waits for queued work to finish.
func (e *PoolExecutor) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cond.Broadcast()
	return e.group.Wait()
}
