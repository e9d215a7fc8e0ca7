// Package task wraps synchronous calls into futures run on an executor, for
// callers that want to start several node operations and join on them later.
package task

import (
	"context"
	"errors"
	"fmt"
)

// ErrTaskFailed wraps every failure surfaced by Await.
var ErrTaskFailed = errors.New("task failed")

// Executor runs submitted functions asynchronously.
type Executor interface {
	Submit(ctx context.Context, fn func()) error
}

// Future is the pending result of a submitted call.
type Future[T any] struct {
	done   chan struct{}
	cancel context.CancelFunc
	value  T
	err    error
}

// Submit schedules fn on exec. The context passed to fn is cancelled by
// Cancel, when ctx ends, or once fn returns.
func Submit[T any](ctx context.Context, exec Executor, fn func(context.Context) (T, error)) *Future[T] {
	taskCtx, cancel := context.WithCancel(ctx)
	f := &Future[T]{
		done:   make(chan struct{}),
		cancel: cancel,
	}

	err := exec.Submit(ctx, func() {
		defer close(f.done)
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				f.err = fmt.Errorf("panic: %v", p)
			}
		}()
		f.value, f.err = fn(taskCtx)
	})
	if err != nil {
		f.err = fmt.Errorf("submit: %w", err)
		cancel()
		close(f.done)
	}
	return f
}

// Await blocks until the task completes or ctx ends. A task failure is
// returned wrapped in ErrTaskFailed.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		if f.err != nil {
			var zero T
			return zero, fmt.Errorf("%w: %w", ErrTaskFailed, f.err)
		}
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel cancels the task's context. A task that already finished is unaffected.
func (f *Future[T]) Cancel() { f.cancel() }

// Done is closed when the task has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.done }
