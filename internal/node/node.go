package node

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"semchord/internal/ident"
	"semchord/internal/logger"
	"semchord/internal/metrics"
	"semchord/internal/replication"
	"semchord/internal/ring"
	"semchord/internal/service"
	"semchord/internal/storage"
	"semchord/internal/worker"
)

const (
	// DefaultMaxForwards caps stale-responsibility forwarding per request.
	DefaultMaxForwards = 32
	// DefaultMaxLookupHops caps the routing hops of one successor lookup.
	// With fingers in place a lookup takes O(log N) hops; the cap leaves room
	// for the successor-list walk a node falls back to before its fingers are
	// filled.
	DefaultMaxLookupHops = 256
	// DefaultMaxSuccessors is the successor list length, which is also the
	// number of replicas pushed per change.
	DefaultMaxSuccessors = 3

	defaultWorkers   = 4
	defaultQueueSize = 256
)

// Config holds everything needed to build a Node.
type Config struct {
	Name string
	// Addr is the address peers dial. The node id is derived from it.
	Addr      string
	Space     *ident.Space
	Transport Transport

	// Optional.
	Store              storage.Store
	Matcher            service.Matcher
	Logger             logger.Logger
	MaxSuccessors      int
	MaxForwards        int
	MaxLookupHops      int
	Workers            int
	QueueSize          int
	ReplicationTimeout time.Duration
	// OnReferences, when set, receives every reference the node holds after
	// a join and after each stabilization round.
	OnReferences func(known []ring.NodeRef)
}

// Node is one member of the ring. It owns its entry store and serves the
// ring protocol to peers through its Transport.
type Node struct {
	self        ring.NodeRef
	space       *ident.Space
	store       storage.Store
	refs        *ring.References
	transport   Transport
	pool        *worker.Pool
	replicator  *replication.Replicator
	matcher       service.Matcher
	maxForwards   int
	maxLookupHops int
	onReferences  func([]ring.NodeRef)
	log           logger.Logger

	// notifyMu serializes Notify and NotifyAndCopyEntries.
	notifyMu sync.Mutex

	endpointMu sync.Mutex
	endpoint   Endpoint
	closeOnce  sync.Once
}

// New creates a node. It is not reachable until Start is called.
func New(cfg Config) (*Node, error) {
	if cfg.Addr == "" {
		return nil, errors.New("node address is required")
	}
	if cfg.Space == nil {
		return nil, errors.New("identifier space is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Addr
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewInMemoryStore(cfg.Space)
	}
	if cfg.Matcher == nil {
		cfg.Matcher = service.SubsetMatcher
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.MaxSuccessors <= 0 {
		cfg.MaxSuccessors = DefaultMaxSuccessors
	}
	if cfg.MaxForwards <= 0 {
		cfg.MaxForwards = DefaultMaxForwards
	}
	if cfg.MaxLookupHops <= 0 {
		cfg.MaxLookupHops = DefaultMaxLookupHops
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	self := ring.NodeRef{
		Name: cfg.Name,
		Addr: cfg.Addr,
		ID:   cfg.Space.NodeID(cfg.Addr),
	}
	log := cfg.Logger.With(logger.String("node", cfg.Name))
	pool := worker.NewPool(cfg.Workers, cfg.QueueSize)

	return &Node{
		self:        self,
		space:       cfg.Space,
		store:       cfg.Store,
		refs:        ring.NewReferences(self, cfg.MaxSuccessors),
		transport:   cfg.Transport,
		pool:        pool,
		replicator:  replication.NewReplicator(pool, log, cfg.ReplicationTimeout),
		matcher:       cfg.Matcher,
		maxForwards:   cfg.MaxForwards,
		maxLookupHops: cfg.MaxLookupHops,
		onReferences:  cfg.OnReferences,
		log:           log,
	}, nil
}

// Self returns the node's own reference.
func (n *Node) Self() ring.NodeRef { return n.self }

// Space returns the identifier space the node hashes with.
func (n *Node) Space() *ident.Space { return n.space }

// References exposes the node's predecessor and successor list.
func (n *Node) References() *ring.References { return n.refs }

// Store exposes the local entry store.
func (n *Node) Store() storage.Store { return n.store }

// Start opens the node's endpoint on its transport.
func (n *Node) Start() error {
	n.endpointMu.Lock()
	defer n.endpointMu.Unlock()

	if n.endpoint != nil {
		return nil
	}
	ep, err := n.transport.Listen(n)
	if err != nil {
		return fmt.Errorf("start %s: %w", n.self.Name, err)
	}
	n.endpoint = ep
	n.log.Info("node started",
		logger.String("addr", n.self.Addr),
		logger.String("id", n.space.Format(n.self.ID)))
	return nil
}

// Crash disconnects the endpoint without telling anyone.
func (n *Node) Crash() {
	if err := n.closeEndpoint(); err != nil && !errors.Is(err, ErrNotRunning) {
		n.log.Warn("closing endpoint", logger.Error(err))
	}
	n.log.Info("node crashed")
}

// Leave hands the node's predecessor to its successor and closes the
// endpoint. Entries are not migrated; successors already hold replicas.
func (n *Node) Leave(ctx context.Context) error {
	if succ, ok := n.refs.Successor(); ok {
		pred, _ := n.refs.Predecessor()
		p, err := n.transport.Dial(succ)
		if err == nil {
			err = p.LeavesNetwork(ctx, pred)
		}
		if err != nil {
			n.log.Warn("leave notification failed",
				logger.String("successor", succ.Addr),
				logger.Error(err))
		}
	}
	if err := n.closeEndpoint(); err != nil {
		return err
	}
	n.log.Info("node left")
	return nil
}

// Close releases the worker pool. Queued replication still runs.
func (n *Node) Close() {
	n.closeOnce.Do(func() {
		_ = n.closeEndpoint()
		n.pool.Close()
	})
}

func (n *Node) closeEndpoint() error {
	n.endpointMu.Lock()
	defer n.endpointMu.Unlock()

	if n.endpoint == nil {
		return ErrNotRunning
	}
	err := n.endpoint.Close()
	n.endpoint = nil
	return err
}

// Join enters the ring known to bootstrap: it looks up its own successor,
// takes over the entries that moved to it and adopts the successor's view
// of the ring.
func (n *Node) Join(ctx context.Context, bootstrap ring.NodeRef) error {
	bp, err := n.transport.Dial(bootstrap)
	if err != nil {
		return fmt.Errorf("join via %s: %w", bootstrap.Addr, err)
	}
	succ, err := bp.FindSuccessor(ctx, n.self.ID)
	if err != nil {
		return fmt.Errorf("join via %s: find successor: %w", bootstrap.Addr, err)
	}
	if succ.Addr == n.self.Addr {
		return fmt.Errorf("join via %s: ring already contains %s", bootstrap.Addr, n.self.Addr)
	}
	if succ.ID == n.self.ID {
		return fmt.Errorf("join via %s: identifier %s taken by %s", bootstrap.Addr, n.space.Format(n.self.ID), succ.Addr)
	}

	sp, err := n.transport.Dial(succ)
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	refs, entries, err := sp.NotifyAndCopyEntries(ctx, n.self)
	if err != nil {
		return fmt.Errorf("join: copy entries from %s: %w", succ.Addr, err)
	}

	n.refs.AddSuccessor(succ)
	if len(refs) > 0 {
		for _, r := range refs[1:] {
			n.refs.AddSuccessor(r)
		}
		if refs[0].Addr != n.self.Addr {
			n.refs.AdoptPredecessor(refs[0])
		}
	}
	if err := n.store.PutAll(entries); err != nil {
		return fmt.Errorf("join: store copied entries: %w", err)
	}
	n.updateStoredGauge()

	n.log.Info("joined ring",
		logger.String("successor", succ.Addr),
		logger.Int("copied", len(entries)))
	n.publishReferences()

	// Let the predecessor learn about us before the next stabilization.
	if pred, ok := n.refs.Predecessor(); ok {
		if pp, err := n.transport.Dial(pred); err == nil {
			if _, err := pp.Notify(ctx, n.self); err != nil {
				n.log.Debug("notify predecessor after join", logger.Error(err))
			}
		}
	}
	return nil
}

// Stabilize runs one round of ring maintenance. It drops a dead
// predecessor, notifies the successor, switches to a closer successor if
// one appeared, refreshes the successor list and tells nodes that fell off
// the list to drop their replicas.
func (n *Node) Stabilize(ctx context.Context) error {
	defer n.publishReferences()
	n.checkPredecessor(ctx)

	succ, ok := n.refs.Successor()
	if !ok {
		return nil
	}

	p, err := n.transport.Dial(succ)
	if err != nil {
		return err
	}
	view, err := p.Notify(ctx, n.self)
	if err != nil {
		n.refs.RemoveReference(succ.Addr)
		return fmt.Errorf("stabilize: successor %s: %w", succ.Addr, err)
	}

	list := []ring.NodeRef{succ}
	if len(view) > 0 {
		x := view[0]
		if x.Addr != n.self.Addr && ident.IsStrictlyBetween(x.ID, n.self.ID, succ.ID) {
			list = append([]ring.NodeRef{x}, list...)
		}
		list = append(list, view[1:]...)
	}

	dropped := n.refs.SetSuccessors(list)
	if len(dropped) > 0 {
		n.log.Debug("successors dropped", logger.Int("count", len(dropped)))
		n.replicator.Fanout("cleanup", dropped, func(ctx context.Context, target ring.NodeRef) error {
			tp, err := n.transport.Dial(target)
			if err != nil {
				return err
			}
			return tp.RemoveReplicas(ctx, n.self.ID, nil)
		})
	}
	return nil
}

// checkPredecessor forgets a predecessor that stopped answering, so a
// live node can claim its range.
func (n *Node) checkPredecessor(ctx context.Context) {
	pred, ok := n.refs.Predecessor()
	if !ok {
		return
	}
	p, err := n.transport.Dial(pred)
	if err == nil {
		err = p.Ping(ctx)
	}
	if err != nil {
		n.refs.RemoveReference(pred.Addr)
		n.log.Info("predecessor unreachable", logger.String("predecessor", pred.Addr), logger.Error(err))
	}
}

// FixFingers refreshes the finger table: finger k is the successor of
// self+2^k. A finger whose start falls before the previous finger reuses it
// without a lookup. Failed lookups leave their finger as it was.
func (n *Node) FixFingers(ctx context.Context) error {
	var (
		prev ring.NodeRef
		errs []error
	)
	for k := 0; k < n.space.Width(); k++ {
		start, err := n.space.AddPowerOfTwo(n.self.ID, k)
		if err != nil {
			return err
		}
		if !prev.IsZero() && (start == prev.ID || ident.IsStrictlyBetween(start, n.self.ID, prev.ID)) {
			n.refs.SetFinger(k, prev)
			continue
		}

		f, err := n.FindSuccessor(ctx, start)
		if err != nil {
			errs = append(errs, fmt.Errorf("finger %d: %w", k, err))
			prev = ring.NodeRef{}
			continue
		}
		n.refs.SetFinger(k, f)
		prev = f
		if f.Addr == n.self.Addr {
			prev = ring.NodeRef{}
		}
	}
	return errors.Join(errs...)
}

// Run stabilizes and refreshes fingers every interval until ctx is done.
func (n *Node) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.Stabilize(ctx); err != nil {
				n.log.Warn("stabilize failed", logger.Error(err))
			}
			if err := n.FixFingers(ctx); err != nil {
				n.log.Debug("fix fingers incomplete", logger.Error(err))
			}
		}
	}
}

// ForgetPeers drops references to addrs, which the failure detector reports
// suspect or dead.
func (n *Node) ForgetPeers(addrs ...string) {
	for _, addr := range addrs {
		if n.refs.RemoveReference(addr) {
			n.log.Info("dropped unreachable reference", logger.String("peer", addr))
		}
	}
}

func (n *Node) publishReferences() {
	if n.onReferences != nil {
		n.onReferences(n.refs.Known())
	}
}

// DumpEntries renders the node's references and entries for operators.
func (n *Node) DumpEntries() string {
	var b strings.Builder
	fmt.Fprintf(&b, "node %s id=%s\n", n.self.Name, n.space.Format(n.self.ID))
	fmt.Fprintf(&b, "%s\n", n.refs)
	b.WriteString(n.store.Dump())
	return b.String()
}

func (n *Node) updateStoredGauge() {
	metrics.StoredEntries.WithLabelValues(n.self.Name).Set(float64(n.store.Size()))
}
