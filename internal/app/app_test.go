package app

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semchord/internal/config"
	"semchord/internal/logger"
	"semchord/internal/service"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func testConfig(t *testing.T, id string) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.NodeID = id
	cfg.ListenAddr = freeAddr(t)
	cfg.StabilizeInterval = 50 * time.Millisecond
	cfg.ProbeInterval = 100 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.RedisAddr = ""
	return cfg
}

func start(t *testing.T, cfg *config.Config) (*App, context.CancelFunc, <-chan error) {
	t.Helper()
	a, err := New(cfg, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	return a, cancel, done
}

func stop(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "")
	_, err := New(cfg, logger.NewNop())
	assert.Error(t, err)
}

func TestTwoNodesFormRingAndServeSeed(t *testing.T) {
	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(`entries:
  - semantic: [printer, color, a4, duplex]
    provider: acme
    qos: [fast]
`), 0o644))

	cfg1 := testConfig(t, "n1")
	cfg1.HTTPAddr = freeAddr(t)
	a1, cancel1, done1 := start(t, cfg1)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg1.HTTPAddr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cfg2 := testConfig(t, "n2")
	cfg2.Bootstrap = cfg1.ListenAddr
	cfg2.SeedFile = seedPath
	_, cancel2, done2 := start(t, cfg2)

	require.Eventually(t, func() bool {
		succ, ok := a1.node.References().Successor()
		return ok && succ.Addr == cfg2.ListenAddr
	}, 5*time.Second, 20*time.Millisecond, "n1 never learned about n2")

	record := service.Descriptor{Semantic: []string{"printer", "color", "a4", "duplex"}, Provider: "acme"}
	require.Eventually(t, func() bool {
		res, err := a1.node.Lookup(context.Background(), record, service.Constraints{}, 1)
		return err == nil && res.Contains(record)
	}, 5*time.Second, 20*time.Millisecond, "seed entry not reachable from n1")

	stop(t, cancel2, done2)

	require.Eventually(t, func() bool {
		_, ok := a1.node.References().Predecessor()
		return !ok
	}, 5*time.Second, 20*time.Millisecond, "n1 kept the departed predecessor")

	stop(t, cancel1, done1)
}

func memberIDs(a *App) []string {
	ids := make([]string, 0)
	for _, m := range a.membership.Snapshot() {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestBootstrapJoinFeedsFailureDetector(t *testing.T) {
	cfg1 := testConfig(t, "n1")
	a1, cancel1, done1 := start(t, cfg1)

	cfg2 := testConfig(t, "n2")
	cfg2.Bootstrap = cfg1.ListenAddr
	a2, cancel2, done2 := start(t, cfg2)

	// Each side monitors the other under its node name.
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"n1", "n2"}, memberIDs(a1)) &&
			assert.ObjectsAreEqual([]string{"n1", "n2"}, memberIDs(a2))
	}, 5*time.Second, 20*time.Millisecond, "members n1=%v n2=%v", memberIDs(a1), memberIDs(a2))

	stop(t, cancel2, done2)
	stop(t, cancel1, done1)
}
