package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semchord/internal/worker"
)

func TestFuture_ReturnsValue(t *testing.T) {
	pool := worker.NewPool(2, 4)
	defer pool.Close()

	f := Submit(context.Background(), pool, func(context.Context) (int, error) {
		return 42, nil
	})
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestFuture_WrapsFailure(t *testing.T) {
	pool := worker.NewPool(1, 1)
	defer pool.Close()

	cause := errors.New("unreachable")
	f := Submit(context.Background(), pool, func(context.Context) (string, error) {
		return "", cause
	})
	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, ErrTaskFailed)
	assert.ErrorIs(t, err, cause)
}

func TestFuture_RecoversPanic(t *testing.T) {
	pool := worker.NewPool(1, 1)
	defer pool.Close()

	f := Submit(context.Background(), pool, func(context.Context) (int, error) {
		panic("boom")
	})
	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, ErrTaskFailed)
}

func TestFuture_Cancel(t *testing.T) {
	pool := worker.NewPool(1, 1)
	defer pool.Close()

	started := make(chan struct{})
	f := Submit(context.Background(), pool, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	<-started
	f.Cancel()

	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrTaskFailed)
}

func TestFuture_AwaitTimeout(t *testing.T) {
	pool := worker.NewPool(1, 1)
	defer pool.Close()

	release := make(chan struct{})
	f := Submit(context.Background(), pool, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-f.Done()
}

func TestFuture_ClosedExecutor(t *testing.T) {
	pool := worker.NewPool(1, 1)
	pool.Close()

	f := Submit(context.Background(), pool, func(context.Context) (int, error) {
		return 1, nil
	})
	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, worker.ErrClosed)
}
