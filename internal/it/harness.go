package it

import (
	"context"
	"fmt"
	"net"
	"sync"

	"semchord/internal/ident"
	"semchord/internal/logger"
	"semchord/internal/node"
	"semchord/internal/ring"
)

// Kind selects the transport a test cluster runs on.
type Kind int

const (
	// Local keeps every node in process behind a node.LocalTransport.
	Local Kind = iota
	// GRPC serves every node on a loopback port.
	GRPC
)

// Cluster is a ring of nodes living in the test process.
type Cluster struct {
	mu         sync.Mutex
	kind       Kind
	space      *ident.Space
	transport  node.Transport
	clients    *node.ClientManager
	successors int
	log        logger.Logger
	nodes      []*node.Node
	dead       map[string]bool
}

// NewCluster creates an empty cluster. successors is the successor list
// length, i.e. the replica count.
func NewCluster(kind Kind, successors int) (*Cluster, error) {
	space, err := ident.NewSpace(ident.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create identifier space: %w", err)
	}

	c := &Cluster{
		kind:       kind,
		space:      space,
		successors: successors,
		log:        logger.NewNop(),
		dead:       make(map[string]bool),
	}
	switch kind {
	case GRPC:
		c.clients = node.NewClientManager()
		c.transport = node.NewGRPCTransport(c.clients, c.log)
	default:
		c.transport = node.NewLocalTransport()
	}
	return c, nil
}

// Space returns the cluster's identifier space.
func (c *Cluster) Space() *ident.Space { return c.space }

// StartNode starts a node and joins it to the first live node, if any.
func (c *Cluster) StartNode(ctx context.Context, name string) (*node.Node, error) {
	addr, err := c.addrFor(name)
	if err != nil {
		return nil, err
	}

	n, err := node.New(node.Config{
		Name:          name,
		Addr:          addr,
		Space:         c.space,
		Transport:     c.transport,
		Logger:        c.log,
		MaxSuccessors: c.successors,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create node %s: %w", name, err)
	}
	if err := n.Start(); err != nil {
		n.Close()
		return nil, err
	}

	c.mu.Lock()
	var bootstrap *node.Node
	for _, other := range c.nodes {
		if !c.dead[other.Self().Name] {
			bootstrap = other
			break
		}
	}
	c.nodes = append(c.nodes, n)
	c.mu.Unlock()

	if bootstrap != nil {
		if err := n.Join(ctx, bootstrap.Self()); err != nil {
			return nil, fmt.Errorf("node %s failed to join: %w", name, err)
		}
	}
	return n, nil
}

// StartCluster starts size nodes named n1..nN and stabilizes the ring.
func (c *Cluster) StartCluster(ctx context.Context, size int) error {
	for i := 1; i <= size; i++ {
		if _, err := c.StartNode(ctx, fmt.Sprintf("n%d", i)); err != nil {
			c.Stop()
			return err
		}
	}
	c.Stabilize(ctx, 2*size+2)
	return nil
}

// Stabilize runs rounds of stabilization on every live node. Failures are
// expected right after a crash and are ignored.
func (c *Cluster) Stabilize(ctx context.Context, rounds int) {
	for i := 0; i < rounds; i++ {
		for _, n := range c.Nodes() {
			_ = n.Stabilize(ctx)
		}
	}
}

// KillNode crashes a node without any handoff. Survivors are told to forget
// it the way the failure detector would.
func (c *Cluster) KillNode(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var victim *node.Node
	for _, n := range c.nodes {
		if n.Self().Name == name {
			victim = n
			break
		}
	}
	if victim == nil {
		return fmt.Errorf("node %s not found", name)
	}

	victim.Crash()
	c.dead[name] = true
	for _, n := range c.nodes {
		if !c.dead[n.Self().Name] {
			n.ForgetPeers(victim.Self().Addr)
		}
	}
	return nil
}

// GetNode returns a node by name.
func (c *Cluster) GetNode(name string) *node.Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		if n.Self().Name == name {
			return n
		}
	}
	return nil
}

// Nodes returns the live nodes.
func (c *Cluster) Nodes() []*node.Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*node.Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		if !c.dead[n.Self().Name] {
			out = append(out, n)
		}
	}
	return out
}

// Owner returns the live node whose range holds id, judged from the node
// ids alone.
func (c *Cluster) Owner(id ident.ID) *node.Node {
	r := ring.NewRing()
	live := make(map[string]*node.Node)
	for _, n := range c.Nodes() {
		r.AddNode(n.Self())
		live[n.Self().Addr] = n
	}
	ref, ok := r.ResponsibleNode(id)
	if !ok {
		return nil
	}
	return live[ref.Addr]
}

// Stop closes every node.
func (c *Cluster) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		n.Close()
	}
	c.nodes = nil
	if c.clients != nil {
		c.clients.Close()
	}
}

func (c *Cluster) addrFor(name string) (string, error) {
	if c.kind != GRPC {
		return name + ".local:7000", nil
	}
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to reserve port: %w", err)
	}
	addr := lis.Addr().String()
	lis.Close()
	return addr, nil
}
