package gossip

import (
	"context"
	"fmt"
	"time"

	"semchord/internal/logger"
	"semchord/internal/node"
	"semchord/internal/wire"
)

// Server implements wire.MembershipServer.
type Server struct {
	membership *Membership
	log        logger.Logger
}

var _ wire.MembershipServer = (*Server)(nil)

// NewServer creates a new membership server.
func NewServer(membership *Membership, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{membership: membership, log: log}
}

// Ping handles ping requests for failure detection.
func (s *Server) Ping(_ context.Context, req *wire.PingRequest) (*wire.PingResponse, error) {
	s.membership.MarkAlive(req.FromID)

	// Optionally apply piggybacked membership
	if len(req.Members) > 0 {
		s.membership.ApplyGossip(membersFromWire(req.Members))
	}

	return &wire.PingResponse{
		ResponderID: s.membership.LocalID(),
		TimestampMs: uint64(time.Now().UnixMilli()),
		Members:     membersToWire(s.membership.Snapshot()),
	}, nil
}

// Gossip handles gossip requests for membership propagation.
func (s *Server) Gossip(_ context.Context, req *wire.GossipRequest) (*wire.GossipResponse, error) {
	s.log.Debug("received gossip",
		logger.String("from", req.FromID),
		logger.Int("members", len(req.Members)))

	s.membership.ApplyGossip(membersFromWire(req.Members))

	return &wire.GossipResponse{
		ResponderID: s.membership.LocalID(),
		Members:     membersToWire(s.membership.Snapshot()),
	}, nil
}

// GetMembership returns current membership state (debug endpoint).
func (s *Server) GetMembership(context.Context, *wire.Empty) (*wire.GetMembershipResponse, error) {
	return &wire.GetMembershipResponse{
		LocalNodeID: s.membership.LocalID(),
		Members:     membersToWire(s.membership.Snapshot()),
	}, nil
}

// RemoteFuncs returns probe and gossip functions that talk to the
// membership servers of other nodes through clients. Replies are merged
// into m.
func RemoteFuncs(m *Membership, clients *node.ClientManager) (ProbeFunc, GossipFunc) {
	probe := func(ctx context.Context, addr string) error {
		c, err := clients.MembershipClient(addr)
		if err != nil {
			return err
		}
		resp, err := c.Ping(ctx, &wire.PingRequest{
			FromID:      m.LocalID(),
			TimestampMs: uint64(time.Now().UnixMilli()),
		})
		if err != nil {
			return fmt.Errorf("ping %s: %w", addr, err)
		}
		m.ApplyGossip(membersFromWire(resp.Members))
		return nil
	}

	gossip := func(ctx context.Context, addr string, members []*Member) error {
		c, err := clients.MembershipClient(addr)
		if err != nil {
			return err
		}
		resp, err := c.Gossip(ctx, &wire.GossipRequest{
			FromID:  m.LocalID(),
			Members: membersToWire(members),
		})
		if err != nil {
			return fmt.Errorf("gossip %s: %w", addr, err)
		}
		m.ApplyGossip(membersFromWire(resp.Members))
		return nil
	}

	return probe, gossip
}

// membersFromWire converts wire members to internal Member slice.
func membersFromWire(in []wire.Member) []*Member {
	members := make([]*Member, 0, len(in))
	for _, wm := range in {
		members = append(members, &Member{
			ID:          wm.ID,
			Addr:        wm.Addr,
			Status:      FromWire(wm.Status),
			Incarnation: wm.Incarnation,
			LastSeen:    time.UnixMilli(int64(wm.LastSeenUnixMs)),
		})
	}
	return members
}

// membersToWire converts internal Member slice to wire members.
func membersToWire(members []*Member) []wire.Member {
	out := make([]wire.Member, 0, len(members))
	for _, m := range members {
		out = append(out, wire.Member{
			ID:             m.ID,
			Addr:           m.Addr,
			Status:         m.Status.ToWire(),
			Incarnation:    m.Incarnation,
			LastSeenUnixMs: uint64(m.LastSeen.UnixMilli()),
		})
	}
	return out
}
