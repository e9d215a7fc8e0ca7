package wire

import (
	"context"

	"google.golang.org/grpc"
)

const (
	NodeServiceName       = "semchord.Node"
	MembershipServiceName = "semchord.Membership"
)

// NodeServer is the ring protocol served by every node.
type NodeServer interface {
	FindSuccessor(context.Context, *FindSuccessorRequest) (*FindSuccessorResponse, error)
	InsertEntry(context.Context, *InsertEntryRequest) (*Empty, error)
	InsertReplicas(context.Context, *InsertReplicasRequest) (*Empty, error)
	RemoveEntry(context.Context, *RemoveEntryRequest) (*Empty, error)
	RemoveReplicas(context.Context, *RemoveReplicasRequest) (*Empty, error)
	RetrieveEntries(context.Context, *RetrieveRequest) (*RetrieveResponse, error)
	Notify(context.Context, *NotifyRequest) (*NotifyResponse, error)
	NotifyAndCopyEntries(context.Context, *NotifyRequest) (*NotifyResponse, error)
	LeavesNetwork(context.Context, *LeaveRequest) (*Empty, error)
	Ping(context.Context, *Empty) (*Empty, error)
}

// MembershipServer is the gossip failure detector.
type MembershipServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	Gossip(context.Context, *GossipRequest) (*GossipResponse, error)
	GetMembership(context.Context, *Empty) (*GetMembershipResponse, error)
}

// handler adapts a typed method to grpc.MethodHandler.
func handler[Req any, PReq interface {
	*Req
	Message
}](fullMethod string, call func(srv any, ctx context.Context, in PReq) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(PReq))
		})
	}
}

func nodeMethod(name string) string       { return "/" + NodeServiceName + "/" + name }
func membershipMethod(name string) string { return "/" + MembershipServiceName + "/" + name }

var NodeServiceDesc = grpc.ServiceDesc{
	ServiceName: NodeServiceName,
	HandlerType: (*NodeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "FindSuccessor", Handler: handler[FindSuccessorRequest](nodeMethod("FindSuccessor"),
			func(srv any, ctx context.Context, in *FindSuccessorRequest) (any, error) {
				return srv.(NodeServer).FindSuccessor(ctx, in)
			})},
		{MethodName: "InsertEntry", Handler: handler[InsertEntryRequest](nodeMethod("InsertEntry"),
			func(srv any, ctx context.Context, in *InsertEntryRequest) (any, error) {
				return srv.(NodeServer).InsertEntry(ctx, in)
			})},
		{MethodName: "InsertReplicas", Handler: handler[InsertReplicasRequest](nodeMethod("InsertReplicas"),
			func(srv any, ctx context.Context, in *InsertReplicasRequest) (any, error) {
				return srv.(NodeServer).InsertReplicas(ctx, in)
			})},
		{MethodName: "RemoveEntry", Handler: handler[RemoveEntryRequest](nodeMethod("RemoveEntry"),
			func(srv any, ctx context.Context, in *RemoveEntryRequest) (any, error) {
				return srv.(NodeServer).RemoveEntry(ctx, in)
			})},
		{MethodName: "RemoveReplicas", Handler: handler[RemoveReplicasRequest](nodeMethod("RemoveReplicas"),
			func(srv any, ctx context.Context, in *RemoveReplicasRequest) (any, error) {
				return srv.(NodeServer).RemoveReplicas(ctx, in)
			})},
		{MethodName: "RetrieveEntries", Handler: handler[RetrieveRequest](nodeMethod("RetrieveEntries"),
			func(srv any, ctx context.Context, in *RetrieveRequest) (any, error) {
				return srv.(NodeServer).RetrieveEntries(ctx, in)
			})},
		{MethodName: "Notify", Handler: handler[NotifyRequest](nodeMethod("Notify"),
			func(srv any, ctx context.Context, in *NotifyRequest) (any, error) {
				return srv.(NodeServer).Notify(ctx, in)
			})},
		{MethodName: "NotifyAndCopyEntries", Handler: handler[NotifyRequest](nodeMethod("NotifyAndCopyEntries"),
			func(srv any, ctx context.Context, in *NotifyRequest) (any, error) {
				return srv.(NodeServer).NotifyAndCopyEntries(ctx, in)
			})},
		{MethodName: "LeavesNetwork", Handler: handler[LeaveRequest](nodeMethod("LeavesNetwork"),
			func(srv any, ctx context.Context, in *LeaveRequest) (any, error) {
				return srv.(NodeServer).LeavesNetwork(ctx, in)
			})},
		{MethodName: "Ping", Handler: handler[Empty](nodeMethod("Ping"),
			func(srv any, ctx context.Context, in *Empty) (any, error) {
				return srv.(NodeServer).Ping(ctx, in)
			})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "semchord/node",
}

var MembershipServiceDesc = grpc.ServiceDesc{
	ServiceName: MembershipServiceName,
	HandlerType: (*MembershipServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: handler[PingRequest](membershipMethod("Ping"),
			func(srv any, ctx context.Context, in *PingRequest) (any, error) {
				return srv.(MembershipServer).Ping(ctx, in)
			})},
		{MethodName: "Gossip", Handler: handler[GossipRequest](membershipMethod("Gossip"),
			func(srv any, ctx context.Context, in *GossipRequest) (any, error) {
				return srv.(MembershipServer).Gossip(ctx, in)
			})},
		{MethodName: "GetMembership", Handler: handler[Empty](membershipMethod("GetMembership"),
			func(srv any, ctx context.Context, in *Empty) (any, error) {
				return srv.(MembershipServer).GetMembership(ctx, in)
			})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "semchord/membership",
}

func RegisterNodeServer(s grpc.ServiceRegistrar, srv NodeServer) {
	s.RegisterService(&NodeServiceDesc, srv)
}

func RegisterMembershipServer(s grpc.ServiceRegistrar, srv MembershipServer) {
	s.RegisterService(&MembershipServiceDesc, srv)
}

// NodeClient calls NodeServer on a remote node.
type NodeClient struct {
	cc grpc.ClientConnInterface
}

func NewNodeClient(cc grpc.ClientConnInterface) *NodeClient {
	return &NodeClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in Message, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NodeClient) FindSuccessor(ctx context.Context, in *FindSuccessorRequest, opts ...grpc.CallOption) (*FindSuccessorResponse, error) {
	return invoke[FindSuccessorResponse](ctx, c.cc, nodeMethod("FindSuccessor"), in, opts)
}

func (c *NodeClient) InsertEntry(ctx context.Context, in *InsertEntryRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, nodeMethod("InsertEntry"), in, opts)
}

func (c *NodeClient) InsertReplicas(ctx context.Context, in *InsertReplicasRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, nodeMethod("InsertReplicas"), in, opts)
}

func (c *NodeClient) RemoveEntry(ctx context.Context, in *RemoveEntryRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, nodeMethod("RemoveEntry"), in, opts)
}

func (c *NodeClient) RemoveReplicas(ctx context.Context, in *RemoveReplicasRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, nodeMethod("RemoveReplicas"), in, opts)
}

func (c *NodeClient) RetrieveEntries(ctx context.Context, in *RetrieveRequest, opts ...grpc.CallOption) (*RetrieveResponse, error) {
	return invoke[RetrieveResponse](ctx, c.cc, nodeMethod("RetrieveEntries"), in, opts)
}

func (c *NodeClient) Notify(ctx context.Context, in *NotifyRequest, opts ...grpc.CallOption) (*NotifyResponse, error) {
	return invoke[NotifyResponse](ctx, c.cc, nodeMethod("Notify"), in, opts)
}

func (c *NodeClient) NotifyAndCopyEntries(ctx context.Context, in *NotifyRequest, opts ...grpc.CallOption) (*NotifyResponse, error) {
	return invoke[NotifyResponse](ctx, c.cc, nodeMethod("NotifyAndCopyEntries"), in, opts)
}

func (c *NodeClient) LeavesNetwork(ctx context.Context, in *LeaveRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, nodeMethod("LeavesNetwork"), in, opts)
}

func (c *NodeClient) Ping(ctx context.Context, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, nodeMethod("Ping"), &Empty{}, opts)
	return err
}

// MembershipClient calls MembershipServer on a remote node.
type MembershipClient struct {
	cc grpc.ClientConnInterface
}

func NewMembershipClient(cc grpc.ClientConnInterface) *MembershipClient {
	return &MembershipClient{cc: cc}
}

func (c *MembershipClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, membershipMethod("Ping"), in, opts)
}

func (c *MembershipClient) Gossip(ctx context.Context, in *GossipRequest, opts ...grpc.CallOption) (*GossipResponse, error) {
	return invoke[GossipResponse](ctx, c.cc, membershipMethod("Gossip"), in, opts)
}

func (c *MembershipClient) GetMembership(ctx context.Context, opts ...grpc.CallOption) (*GetMembershipResponse, error) {
	return invoke[GetMembershipResponse](ctx, c.cc, membershipMethod("GetMembership"), &Empty{}, opts)
}
