package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semchord/internal/logger"
	"semchord/internal/service"
)

type memClient struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newMemClient() *memClient {
	return &memClient{data: make(map[string]string), ttl: make(map[string]time.Duration)}
}

func (c *memClient) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return redis.NewStatusResult("", c.err)
	}
	c.data[key] = string(value.([]byte))
	c.ttl[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (c *memClient) Get(_ context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return redis.NewStringResult("", c.err)
	}
	v, ok := c.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (c *memClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := c.data[k]; ok {
			delete(c.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (c *memClient) saved(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

func entries() []service.Entry {
	return []service.Entry{
		{Record: service.Descriptor{Semantic: []string{"printer", "color", "a4", "duplex"}, Provider: "acme"}, QoS: []string{"fast"}},
		{Record: service.Descriptor{Semantic: []string{"scanner", "mono", "a3", "simplex"}, Provider: "globex"}},
	}
}

func TestSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	client := newMemClient()
	store := NewStore(client, 0)

	require.NoError(t, store.Save(ctx, "n1", entries()))
	assert.Equal(t, DefaultTTL, client.ttl[Key("n1")])

	got, err := store.Load(ctx, "n1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Record.Equal(entries()[0].Record))
	assert.Equal(t, []string{"fast"}, got[0].QoS)

	require.NoError(t, store.Delete(ctx, "n1"))
	got, err = store.Load(ctx, "n1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	client := newMemClient()
	store := NewStore(client, time.Hour)

	client.data[Key("n1")] = "{not json"
	_, err := store.Load(ctx, "n1")
	assert.Error(t, err)

	client.err = errors.New("connection refused")
	_, err = store.Load(ctx, "n1")
	assert.Error(t, err)
	assert.Error(t, store.Save(ctx, "n1", entries()))
}

type inserter struct {
	got []service.Entry
}

func (i *inserter) Insert(_ context.Context, e service.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	i.got = append(i.got, e)
	return nil
}

func TestRestoreSkipsInvalidEntries(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMemClient(), time.Hour)

	saved := append(entries(), service.Entry{Record: service.Descriptor{Semantic: []string{"printer"}}})
	require.NoError(t, store.Save(ctx, "n1", saved))

	ins := &inserter{}
	n, err := store.Restore(ctx, "n1", ins, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, ins.got, 2)
}

type fixedSource []service.Entry

func (s fixedSource) Snapshot() []service.Entry { return s }

func TestRunSavesPeriodicallyAndOnStop(t *testing.T) {
	client := newMemClient()
	store := NewStore(client, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx, "n1", fixedSource(entries()), 10*time.Millisecond, logger.NewNop())
		close(done)
	}()

	require.Eventually(t, func() bool { return client.saved(Key("n1")) }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
