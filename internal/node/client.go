package node

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"semchord/internal/ident"
	"semchord/internal/logger"
	"semchord/internal/query"
	"semchord/internal/ring"
	"semchord/internal/service"
	"semchord/internal/wire"
)

// ClientManager caches one gRPC connection per peer address.
type ClientManager struct {
	mu    sync.RWMutex
	conns map[string]*grpc.ClientConn
}

// NewClientManager creates an empty client manager.
func NewClientManager() *ClientManager {
	return &ClientManager{conns: make(map[string]*grpc.ClientConn)}
}

// conn returns the connection for addr, creating it on first use.
func (cm *ClientManager) conn(addr string) (*grpc.ClientConn, error) {
	cm.mu.RLock()
	cc, exists := cm.conns[addr]
	cm.mu.RUnlock()

	if exists {
		return cc, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	// Double-check after acquiring write lock
	if cc, exists := cm.conns[addr]; exists {
		return cc, nil
	}

	cc, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(unaryClientInterceptor),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %v: %w", addr, err, ErrCommunication)
	}
	cm.conns[addr] = cc
	return cc, nil
}

// NodeClient returns a ring protocol client for addr.
func (cm *ClientManager) NodeClient(addr string) (*wire.NodeClient, error) {
	cc, err := cm.conn(addr)
	if err != nil {
		return nil, err
	}
	return wire.NewNodeClient(cc), nil
}

// MembershipClient returns a membership client for addr.
func (cm *ClientManager) MembershipClient(addr string) (*wire.MembershipClient, error) {
	cc, err := cm.conn(addr)
	if err != nil {
		return nil, err
	}
	return wire.NewMembershipClient(cc), nil
}

// Close closes all client connections.
func (cm *ClientManager) Close() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for addr, cc := range cm.conns {
		_ = cc.Close()
		delete(cm.conns, addr)
	}
}

func unaryClientInterceptor(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	return invoker(outgoingMetadata(ctx), method, req, reply, cc, opts...)
}

// fromStatus maps a failed RPC back onto node errors.
func fromStatus(addr string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s: %v: %w", addr, err, ErrCommunication)
	}
	switch st.Code() {
	case codes.InvalidArgument:
		if strings.Contains(st.Message(), ident.ErrInvalidSpan.Error()) {
			return fmt.Errorf("%s: %s: %w", addr, st.Message(), ident.ErrInvalidSpan)
		}
		return fmt.Errorf("%s: %s: %w", addr, st.Message(), service.ErrInvalidDescriptor)
	case codes.Aborted:
		return fmt.Errorf("%s: %s: %w", addr, st.Message(), ErrForwardLimit)
	case codes.ResourceExhausted:
		return fmt.Errorf("%s: %s: %w", addr, st.Message(), ErrLookupLimit)
	default:
		return fmt.Errorf("%s: %s: %s: %w", addr, st.Code(), st.Message(), ErrCommunication)
	}
}

// remotePeer reaches a node over gRPC.
type remotePeer struct {
	addr   string
	client *wire.NodeClient
}

func (p *remotePeer) FindSuccessor(ctx context.Context, id ident.ID) (ring.NodeRef, error) {
	resp, err := p.client.FindSuccessor(ctx, &wire.FindSuccessorRequest{ID: uint64(id)})
	if err != nil {
		return ring.NodeRef{}, fromStatus(p.addr, err)
	}
	return refFromWire(resp.Node), nil
}

func (p *remotePeer) InsertEntry(ctx context.Context, e service.Entry) error {
	_, err := p.client.InsertEntry(ctx, &wire.InsertEntryRequest{Entry: entryToWire(e)})
	if err != nil {
		return fromStatus(p.addr, err)
	}
	return nil
}

func (p *remotePeer) InsertReplicas(ctx context.Context, entries []service.Entry) error {
	_, err := p.client.InsertReplicas(ctx, &wire.InsertReplicasRequest{Entries: entriesToWire(entries)})
	if err != nil {
		return fromStatus(p.addr, err)
	}
	return nil
}

func (p *remotePeer) RemoveEntry(ctx context.Context, record service.Descriptor) error {
	_, err := p.client.RemoveEntry(ctx, &wire.RemoveEntryRequest{Record: descriptorToWire(record)})
	if err != nil {
		return fromStatus(p.addr, err)
	}
	return nil
}

func (p *remotePeer) RemoveReplicas(ctx context.Context, boundary ident.ID, records []service.Descriptor) error {
	_, err := p.client.RemoveReplicas(ctx, &wire.RemoveReplicasRequest{
		Boundary: uint64(boundary),
		Records:  descriptorsToWire(records),
	})
	if err != nil {
		return fromStatus(p.addr, err)
	}
	return nil
}

func (p *remotePeer) RetrieveEntries(ctx context.Context, msg query.Message) (*query.Result, error) {
	resp, err := p.client.RetrieveEntries(ctx, messageToWire(msg))
	if err != nil {
		return nil, fromStatus(p.addr, err)
	}
	return resultFromWire(resp), nil
}

func (p *remotePeer) Notify(ctx context.Context, candidate ring.NodeRef) ([]ring.NodeRef, error) {
	resp, err := p.client.Notify(ctx, &wire.NotifyRequest{Candidate: refToWire(candidate)})
	if err != nil {
		return nil, fromStatus(p.addr, err)
	}
	return refsFromWire(resp.Refs), nil
}

func (p *remotePeer) NotifyAndCopyEntries(ctx context.Context, candidate ring.NodeRef) ([]ring.NodeRef, []service.Entry, error) {
	resp, err := p.client.NotifyAndCopyEntries(ctx, &wire.NotifyRequest{Candidate: refToWire(candidate)})
	if err != nil {
		return nil, nil, fromStatus(p.addr, err)
	}
	return refsFromWire(resp.Refs), entriesFromWire(resp.Entries), nil
}

func (p *remotePeer) LeavesNetwork(ctx context.Context, newPredecessor ring.NodeRef) error {
	_, err := p.client.LeavesNetwork(ctx, &wire.LeaveRequest{Predecessor: refToWire(newPredecessor)})
	if err != nil {
		return fromStatus(p.addr, err)
	}
	return nil
}

func (p *remotePeer) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fromStatus(p.addr, err)
	}
	return nil
}

// GRPCTransport serves a node over gRPC and dials peers through a
// ClientManager.
type GRPCTransport struct {
	clients    *ClientManager
	log        logger.Logger
	listenAddr string
	register   []func(grpc.ServiceRegistrar)
}

// GRPCOption configures a GRPCTransport.
type GRPCOption func(*GRPCTransport)

// WithListenAddr binds to addr instead of the node's advertised address.
func WithListenAddr(addr string) GRPCOption {
	return func(t *GRPCTransport) { t.listenAddr = addr }
}

// WithService registers an extra service on the node's server.
func WithService(register func(grpc.ServiceRegistrar)) GRPCOption {
	return func(t *GRPCTransport) { t.register = append(t.register, register) }
}

// NewGRPCTransport creates a gRPC transport.
func NewGRPCTransport(clients *ClientManager, log logger.Logger, opts ...GRPCOption) *GRPCTransport {
	if log == nil {
		log = logger.NewNop()
	}
	t := &GRPCTransport{clients: clients, log: log}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dial returns a peer backed by the cached connection for ref.
func (t *GRPCTransport) Dial(ref ring.NodeRef) (Peer, error) {
	client, err := t.clients.NodeClient(ref.Addr)
	if err != nil {
		return nil, err
	}
	return &remotePeer{addr: ref.Addr, client: client}, nil
}

// Listen starts a gRPC server for n.
func (t *GRPCTransport) Listen(n *Node) (Endpoint, error) {
	addr := t.listenAddr
	if addr == "" {
		addr = n.Self().Addr
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryServerInterceptor(t.log.With(logger.String("node", n.Self().Name)))))
	wire.RegisterNodeServer(srv, NewServer(n))
	for _, register := range t.register {
		register(srv)
	}

	go func() {
		if err := srv.Serve(lis); err != nil {
			t.log.Error("grpc server stopped", logger.String("addr", addr), logger.Error(err))
		}
	}()
	t.log.Info("grpc listening", logger.String("addr", addr))
	return &grpcEndpoint{srv: srv}, nil
}

type grpcEndpoint struct {
	srv *grpc.Server
}

func (e *grpcEndpoint) Close() error {
	e.srv.Stop()
	return nil
}
