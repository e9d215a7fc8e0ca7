// Package worker provides a fixed-size goroutine pool with a bounded queue.
// Replication fan-out and async node calls run on it so that sustained churn
// cannot spawn an unbounded number of goroutines.
package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when submitting to a closed pool.
var ErrClosed = errors.New("worker pool closed")

// Pool runs submitted functions on a fixed set of workers.
type Pool struct {
	tasks     chan func()
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPool starts workers goroutines sharing a queue of queueSize pending tasks.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool{
		tasks: make(chan func(), queueSize),
		quit:  make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case fn := <-p.tasks:
			fn()
		case <-p.quit:
			// Drain what was queued before Close.
			for {
				select {
				case fn := <-p.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Submit queues fn, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	select {
	case <-p.quit:
		return ErrClosed
	default:
	}

	select {
	case p.tasks <- fn:
		return nil
	case <-p.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues fn without blocking. It reports false when the queue is
// full or the pool is closed.
func (p *Pool) TrySubmit(fn func()) bool {
	select {
	case <-p.quit:
		return false
	default:
	}

	select {
	case p.tasks <- fn:
		return true
	default:
		return false
	}
}

// Pending is the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	return len(p.tasks)
}

// Close stops accepting work, runs what is already queued and waits for the
// workers to exit.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}
