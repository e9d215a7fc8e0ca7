// Package app wires a ring node with its gRPC transport, failure detector,
// operator HTTP API, seed entries and Redis snapshots.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"semchord/internal/config"
	"semchord/internal/gossip"
	"semchord/internal/httpapi"
	"semchord/internal/ident"
	"semchord/internal/logger"
	"semchord/internal/node"
	"semchord/internal/ring"
	"semchord/internal/seed"
	"semchord/internal/snapshot"
	"semchord/internal/wire"
)

const joinAttempts = 5

// App is one running semchord process: a ring node served over gRPC with
// its failure detector, operator API and optional snapshots.
type App struct {
	cfg        *config.Config
	logger     logger.Logger
	clients    *node.ClientManager
	node       *node.Node
	membership *gossip.Membership
	http       *httpapi.Server
	redis      *goredis.Client
	snapshots  *snapshot.Store
	snapDone   chan struct{}
}

// New builds every component from cfg. Nothing is started.
func New(cfg *config.Config, log logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	space, err := ident.NewSpace(cfg.SpaceConfig())
	if err != nil {
		return nil, err
	}
	matcher, err := cfg.QoSMatcher()
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: log, clients: node.NewClientManager()}

	a.membership = gossip.NewMembership(cfg.NodeID, cfg.Advertised(),
		cfg.ProbeInterval, cfg.SuspectTimeout, cfg.DeadTimeout, log)
	a.membership.AddSeedMembers(cfg.BuildRingNodes()[1:])
	if cfg.Bootstrap != "" {
		// Named once the join brings back the ring's own references.
		a.membership.AddSeedMembers([]ring.NodeRef{{Addr: cfg.Bootstrap}})
	}

	opts := []node.GRPCOption{
		node.WithService(func(s grpc.ServiceRegistrar) {
			wire.RegisterMembershipServer(s, gossip.NewServer(a.membership, log))
		}),
	}
	if cfg.ListenAddr != cfg.Advertised() {
		opts = append(opts, node.WithListenAddr(cfg.ListenAddr))
	}

	a.node, err = node.New(node.Config{
		Name:               cfg.NodeID,
		Addr:               cfg.Advertised(),
		Space:              space,
		Transport:          node.NewGRPCTransport(a.clients, log, opts...),
		Matcher:            matcher,
		Logger:             log,
		MaxSuccessors:      cfg.MaxSuccessors,
		MaxForwards:        cfg.MaxForwards,
		MaxLookupHops:      cfg.MaxLookupHops,
		Workers:            cfg.Workers,
		QueueSize:          cfg.QueueSize,
		ReplicationTimeout: cfg.ReplicationTimeout,
		OnReferences:       a.membership.AddSeedMembers,
	})
	if err != nil {
		return nil, err
	}
	a.membership.SetOnMembershipChanged(func(unreachable []string) {
		a.node.ForgetPeers(unreachable...)
	})

	if cfg.HTTPAddr != "" {
		a.http = httpapi.New(cfg.HTTPAddr, httpapi.Deps{
			Node:         a.node,
			Logger:       log,
			StartTime:    time.Now(),
			AliveMembers: func() int { return len(a.membership.AliveNodes()) },
		})
	}
	return a, nil
}

// Run starts the node, joins the ring and serves until ctx is done. On
// shutdown the node leaves the ring gracefully.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting semchord node",
		logger.String("node", a.cfg.NodeID),
		logger.String("addr", a.cfg.Advertised()),
		logger.String("id", a.node.Space().Format(a.node.Self().ID)))

	if err := a.node.Start(); err != nil {
		return err
	}
	if err := a.joinRing(ctx); err != nil {
		a.node.Close()
		return err
	}

	a.membership.Start(gossip.RemoteFuncs(a.membership, a.clients))
	go a.node.Run(ctx, a.cfg.StabilizeInterval)

	if a.cfg.RedisAddr != "" {
		if err := a.startSnapshots(ctx); err != nil {
			a.logger.Warn("snapshots disabled", logger.Error(err))
		}
	}
	if a.cfg.SeedFile != "" {
		a.loadSeed(ctx)
	}

	errCh := make(chan error, 1)
	if a.http != nil {
		go func() {
			if err := a.http.Start(); err != nil {
				errCh <- fmt.Errorf("http server error: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully")
	case runErr = <-errCh:
	}

	a.shutdown()
	return runErr
}

// joinRing joins through the configured bootstrap, or the first configured
// peer that answers. A node with neither starts a ring of its own.
func (a *App) joinRing(ctx context.Context) error {
	candidates := make([]ring.NodeRef, 0)
	if a.cfg.Bootstrap != "" {
		candidates = append(candidates, ring.NodeRef{Name: a.cfg.Bootstrap, Addr: a.cfg.Bootstrap})
	} else {
		candidates = append(candidates, a.cfg.BuildRingNodes()[1:]...)
	}
	if len(candidates) == 0 {
		a.logger.Info("no bootstrap configured, starting a new ring")
		return nil
	}

	var errs []error
	for attempt := 1; attempt <= joinAttempts; attempt++ {
		for _, c := range candidates {
			err := a.node.Join(ctx, c)
			if err == nil {
				return nil
			}
			errs = append(errs, err)
			a.logger.Warn("join failed",
				logger.String("via", c.Addr),
				logger.Int("attempt", attempt),
				logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.StabilizeInterval):
		}
	}

	if a.cfg.Bootstrap != "" {
		return fmt.Errorf("join via %s: %w", a.cfg.Bootstrap, errors.Join(errs...))
	}
	// Peers that are not up yet will join us instead.
	a.logger.Warn("no configured peer answered, starting a new ring")
	return nil
}

func (a *App) startSnapshots(ctx context.Context) error {
	client, err := snapshot.Connect(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB, a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	a.snapshots = snapshot.NewStore(client, 0)

	restored, err := a.snapshots.Restore(ctx, a.cfg.NodeID, a.node, a.logger)
	if err != nil {
		a.logger.Warn("snapshot restore failed", logger.Error(err))
	} else if restored > 0 {
		a.logger.Info("snapshot restored", logger.Int("entries", restored))
	}

	a.snapDone = make(chan struct{})
	go func() {
		defer close(a.snapDone)
		a.snapshots.Run(ctx, a.cfg.NodeID, a.node.Store(), a.cfg.SnapshotInterval, a.logger)
	}()
	return nil
}

func (a *App) loadSeed(ctx context.Context) {
	entries, err := seed.NewLoader(a.cfg.SeedFile).Load()
	if err != nil {
		a.logger.Warn("seed file not loaded", logger.String("file", a.cfg.SeedFile), logger.Error(err))
		return
	}
	if err := seed.Apply(ctx, a.node, entries); err != nil {
		a.logger.Warn("some seed entries were not inserted", logger.Error(err))
	}
	a.logger.Info("seed entries inserted", logger.Int("entries", len(entries)))
}

func (a *App) shutdown() {
	a.membership.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if a.http != nil {
		if err := a.http.Stop(shutdownCtx); err != nil {
			a.logger.Warn("failed to stop http server", logger.Error(err))
		}
	}
	if err := a.node.Leave(shutdownCtx); err != nil && !errors.Is(err, node.ErrNotRunning) {
		a.logger.Warn("leave failed", logger.Error(err))
	}
	a.node.Close()
	a.clients.Close()

	if a.snapDone != nil {
		// Let the final snapshot finish before the client goes away.
		select {
		case <-a.snapDone:
		case <-shutdownCtx.Done():
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		}
	}
	a.logger.Info("node stopped")
}
