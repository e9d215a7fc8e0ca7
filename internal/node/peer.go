package node

import (
	"context"
	"fmt"
	"sync"

	"semchord/internal/ident"
	"semchord/internal/query"
	"semchord/internal/ring"
	"semchord/internal/service"
)

// Peer is the ring protocol as seen from a caller. *Node implements it for
// local calls; transports return implementations that reach remote nodes.
// Transport failures are reported as errors wrapping ErrCommunication.
type Peer interface {
	FindSuccessor(ctx context.Context, id ident.ID) (ring.NodeRef, error)
	InsertEntry(ctx context.Context, e service.Entry) error
	InsertReplicas(ctx context.Context, entries []service.Entry) error
	RemoveEntry(ctx context.Context, record service.Descriptor) error
	RemoveReplicas(ctx context.Context, boundary ident.ID, records []service.Descriptor) error
	RetrieveEntries(ctx context.Context, msg query.Message) (*query.Result, error)
	Notify(ctx context.Context, candidate ring.NodeRef) ([]ring.NodeRef, error)
	NotifyAndCopyEntries(ctx context.Context, candidate ring.NodeRef) ([]ring.NodeRef, []service.Entry, error)
	LeavesNetwork(ctx context.Context, newPredecessor ring.NodeRef) error
	Ping(ctx context.Context) error
}

// Endpoint is an open listener serving one node.
type Endpoint interface {
	// Close stops serving immediately. In-flight calls may fail.
	Close() error
}

// Transport connects nodes to each other.
type Transport interface {
	// Dial returns a peer for ref. It does not guarantee ref is reachable.
	Dial(ref ring.NodeRef) (Peer, error)
	// Listen makes n reachable at its advertised address.
	Listen(n *Node) (Endpoint, error)
}

// LocalTransport connects nodes living in the same process. Closing a
// node's endpoint makes every later call to it fail, which is how tests
// crash nodes.
type LocalTransport struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewLocalTransport returns an empty in-process registry.
func NewLocalTransport() *LocalTransport {
	return &LocalTransport{nodes: make(map[string]*Node)}
}

// Dial returns a peer that resolves ref on every call.
func (t *LocalTransport) Dial(ref ring.NodeRef) (Peer, error) {
	return &localPeer{t: t, addr: ref.Addr}, nil
}

// Listen registers n under its address.
func (t *LocalTransport) Listen(n *Node) (Endpoint, error) {
	addr := n.Self().Addr

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.nodes[addr]; exists {
		return nil, fmt.Errorf("address %s already registered", addr)
	}
	t.nodes[addr] = n
	return &localEndpoint{t: t, addr: addr}, nil
}

func (t *LocalTransport) lookup(addr string) (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[addr]
	if !ok {
		return nil, fmt.Errorf("%s unreachable: %w", addr, ErrCommunication)
	}
	return n, nil
}

type localEndpoint struct {
	t    *LocalTransport
	addr string
}

func (e *localEndpoint) Close() error {
	e.t.mu.Lock()
	defer e.t.mu.Unlock()
	delete(e.t.nodes, e.addr)
	return nil
}

// localPeer forwards every call to the registered node. The caller's
// context passes through unchanged, so the hop counters travel with it.
type localPeer struct {
	t    *LocalTransport
	addr string
}

func (p *localPeer) FindSuccessor(ctx context.Context, id ident.ID) (ring.NodeRef, error) {
	n, err := p.t.lookup(p.addr)
	if err != nil {
		return ring.NodeRef{}, err
	}
	return n.FindSuccessor(ctx, id)
}

func (p *localPeer) InsertEntry(ctx context.Context, e service.Entry) error {
	n, err := p.t.lookup(p.addr)
	if err != nil {
		return err
	}
	return n.InsertEntry(ctx, e.Clone())
}

func (p *localPeer) InsertReplicas(ctx context.Context, entries []service.Entry) error {
	n, err := p.t.lookup(p.addr)
	if err != nil {
		return err
	}
	return n.InsertReplicas(ctx, entries)
}

func (p *localPeer) RemoveEntry(ctx context.Context, record service.Descriptor) error {
	n, err := p.t.lookup(p.addr)
	if err != nil {
		return err
	}
	return n.RemoveEntry(ctx, record.Clone())
}

func (p *localPeer) RemoveReplicas(ctx context.Context, boundary ident.ID, records []service.Descriptor) error {
	n, err := p.t.lookup(p.addr)
	if err != nil {
		return err
	}
	return n.RemoveReplicas(ctx, boundary, records)
}

func (p *localPeer) RetrieveEntries(ctx context.Context, msg query.Message) (*query.Result, error) {
	n, err := p.t.lookup(p.addr)
	if err != nil {
		return nil, err
	}
	return n.RetrieveEntries(ctx, msg)
}

func (p *localPeer) Notify(ctx context.Context, candidate ring.NodeRef) ([]ring.NodeRef, error) {
	n, err := p.t.lookup(p.addr)
	if err != nil {
		return nil, err
	}
	return n.Notify(ctx, candidate)
}

func (p *localPeer) NotifyAndCopyEntries(ctx context.Context, candidate ring.NodeRef) ([]ring.NodeRef, []service.Entry, error) {
	n, err := p.t.lookup(p.addr)
	if err != nil {
		return nil, nil, err
	}
	return n.NotifyAndCopyEntries(ctx, candidate)
}

func (p *localPeer) LeavesNetwork(ctx context.Context, newPredecessor ring.NodeRef) error {
	n, err := p.t.lookup(p.addr)
	if err != nil {
		return err
	}
	return n.LeavesNetwork(ctx, newPredecessor)
}

func (p *localPeer) Ping(ctx context.Context) error {
	n, err := p.t.lookup(p.addr)
	if err != nil {
		return err
	}
	return n.Ping(ctx)
}

var _ Peer = (*Node)(nil)
