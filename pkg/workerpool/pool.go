// Package workerpool provides a strictly bounded goroutine pool. At most
// Cap workers ever run, so the pool doubles as the concurrency limit for
// outbound probes.
package workerpool

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool manages a fixed set of worker goroutines draining one shared queue.
type Pool struct {
	workers int32
	running int32

	tasks chan func()

	// mu guards closed against concurrent Submit/Close so a task is never
	// sent on a closed channel.
	mu     sync.RWMutex
	closed bool

	wg      sync.WaitGroup
	onPanic func(any)
	logger  *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithPanicHandler sets a callback invoked with the recovered value when
// a task panics. The worker keeps running.
func WithPanicHandler(fn func(any)) Option {
	return func(p *Pool) { p.onPanic = fn }
}

// WithLogger sets the logger used to report recovered panics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a pool with the given number of workers. Workers start
// lazily as tasks arrive.
func New(workers int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		workers: int32(workers),
		tasks:   make(chan func(), workers*4),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) spawn() {
	for {
		running := atomic.LoadInt32(&p.running)
		if running >= p.workers {
			return
		}
		if atomic.CompareAndSwapInt32(&p.running, running, running+1) {
			p.wg.Add(1)
			go p.worker()
			return
		}
	}
}

// Submit queues task, blocking while the queue is full. It returns false
// if the pool is closed.
func (p *Pool) Submit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.spawn()
	p.tasks <- task
	return true
}

// SubmitCtx is Submit that gives up when ctx is done before the task
// could be queued.
func (p *Pool) SubmitCtx(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.spawn()
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer func() {
		atomic.AddInt32(&p.running, -1)
		p.wg.Done()
	}()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	if task == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("workerpool: task panicked", slog.Any("panic", r))
			if p.onPanic != nil {
				p.onPanic(r)
			}
		}
	}()
	task()
}

// Running returns the current number of live workers.
func (p *Pool) Running() int {
	return int(atomic.LoadInt32(&p.running))
}

// Cap returns the worker limit.
func (p *Pool) Cap() int {
	return int(p.workers)
}

// Waiting returns the number of queued tasks.
func (p *Pool) Waiting() int {
	return len(p.tasks)
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// IsClosed reports whether Close was called.
func (p *Pool) IsClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// ParallelFor runs fn for each index in [0, n) and blocks until all
// submitted iterations complete. Iterations not yet queued when ctx is
// cancelled are skipped.
func (p *Pool) ParallelFor(ctx context.Context, n int, fn func(i int)) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		idx := i
		wg.Add(1)
		if err := p.SubmitCtx(ctx, func() {
			defer wg.Done()
			fn(idx)
		}); err != nil {
			wg.Done()
			break
		}
	}
	wg.Wait()
}

// Map applies fn to each item in parallel and returns results in input
// order. Items skipped because the pool closed keep the zero value.
func Map[T, R any](p *Pool, items []T, fn func(T) R) []R {
	results := make([]R, len(items))
	var wg sync.WaitGroup
	wg.Add(len(items))
	for i, item := range items {
		idx, val := i, item
		if !p.Submit(func() {
			defer wg.Done()
			results[idx] = fn(val)
		}) {
			wg.Done()
		}
	}
	wg.Wait()
	return results
}
