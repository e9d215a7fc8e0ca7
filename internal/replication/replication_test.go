package replication

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semchord/internal/logger"
	"semchord/internal/ring"
	"semchord/internal/worker"
)

func targets(addrs ...string) []ring.NodeRef {
	out := make([]ring.NodeRef, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, ring.NodeRef{Name: a, Addr: a})
	}
	return out
}

func TestFanout_CallsEveryTarget(t *testing.T) {
	pool := worker.NewPool(2, 10)
	defer pool.Close()
	r := NewReplicator(pool, logger.NewNop(), time.Second)

	var mu sync.Mutex
	var wg sync.WaitGroup
	seen := make(map[string]bool)
	wg.Add(3)

	n := r.Fanout("insert", targets("a", "b", "c"), func(ctx context.Context, target ring.NodeRef) error {
		defer wg.Done()
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		mu.Lock()
		seen[target.Addr] = true
		mu.Unlock()
		return nil
	})
	require.Equal(t, 3, n)
	wg.Wait()
	assert.Len(t, seen, 3)
}

func TestFanout_FailuresAreSwallowed(t *testing.T) {
	pool := worker.NewPool(1, 10)
	r := NewReplicator(pool, logger.NewNop(), time.Second)

	var wg sync.WaitGroup
	wg.Add(2)
	r.Fanout("remove", targets("a", "b"), func(ctx context.Context, target ring.NodeRef) error {
		defer wg.Done()
		if target.Addr == "a" {
			panic("boom")
		}
		return errors.New("unreachable")
	})
	wg.Wait()
	pool.Close()
}

func TestFanout_DropsWhenQueueFull(t *testing.T) {
	pool := worker.NewPool(1, 1)
	defer pool.Close()
	r := NewReplicator(pool, logger.NewNop(), time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, pool.TrySubmit(func() {
		close(started)
		<-release
	}))
	<-started
	// Worker busy, fill the single queue slot.
	require.True(t, pool.TrySubmit(func() {}))

	n := r.Fanout("insert", targets("a", "b"), func(context.Context, ring.NodeRef) error { return nil })
	assert.Equal(t, 0, n)
	close(release)
}
