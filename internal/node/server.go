package node

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"semchord/internal/ident"
	"semchord/internal/logger"
	"semchord/internal/service"
	"semchord/internal/wire"
)

// Server implements the semchord.Node gRPC service on top of a Node.
type Server struct {
	node *Node
}

// NewServer creates a gRPC adapter for n.
func NewServer(n *Node) *Server {
	return &Server{node: n}
}

var _ wire.NodeServer = (*Server)(nil)

// FindSuccessor handles ring lookups.
func (s *Server) FindSuccessor(ctx context.Context, req *wire.FindSuccessorRequest) (*wire.FindSuccessorResponse, error) {
	ref, err := s.node.FindSuccessor(ctx, ident.ID(req.ID))
	if err != nil {
		return nil, err
	}
	return &wire.FindSuccessorResponse{Node: refToWire(ref)}, nil
}

// InsertEntry handles primary inserts.
func (s *Server) InsertEntry(ctx context.Context, req *wire.InsertEntryRequest) (*wire.Empty, error) {
	if err := s.node.InsertEntry(ctx, entryFromWire(req.Entry)); err != nil {
		return nil, err
	}
	return &wire.Empty{}, nil
}

// RemoveEntry handles primary removals.
func (s *Server) RemoveEntry(ctx context.Context, req *wire.RemoveEntryRequest) (*wire.Empty, error) {
	if err := s.node.RemoveEntry(ctx, descriptorFromWire(req.Record)); err != nil {
		return nil, err
	}
	return &wire.Empty{}, nil
}

// RetrieveEntries handles retrieval hops.
func (s *Server) RetrieveEntries(ctx context.Context, req *wire.RetrieveRequest) (*wire.RetrieveResponse, error) {
	res, err := s.node.RetrieveEntries(ctx, messageFromWire(req))
	if err != nil {
		return nil, err
	}
	return resultToWire(res), nil
}

// Notify handles stabilization notifications.
func (s *Server) Notify(ctx context.Context, req *wire.NotifyRequest) (*wire.NotifyResponse, error) {
	refs, err := s.node.Notify(ctx, refFromWire(req.Candidate))
	if err != nil {
		return nil, err
	}
	return &wire.NotifyResponse{Refs: refsToWire(refs)}, nil
}

// NotifyAndCopyEntries handles joins.
func (s *Server) NotifyAndCopyEntries(ctx context.Context, req *wire.NotifyRequest) (*wire.NotifyResponse, error) {
	refs, entries, err := s.node.NotifyAndCopyEntries(ctx, refFromWire(req.Candidate))
	if err != nil {
		return nil, err
	}
	return &wire.NotifyResponse{Refs: refsToWire(refs), Entries: entriesToWire(entries)}, nil
}

// LeavesNetwork handles a departing predecessor.
func (s *Server) LeavesNetwork(ctx context.Context, req *wire.LeaveRequest) (*wire.Empty, error) {
	if err := s.node.LeavesNetwork(ctx, refFromWire(req.Predecessor)); err != nil {
		return nil, err
	}
	return &wire.Empty{}, nil
}

// Ping answers liveness checks.
func (s *Server) Ping(ctx context.Context, _ *wire.Empty) (*wire.Empty, error) {
	if err := s.node.Ping(ctx); err != nil {
		return nil, err
	}
	return &wire.Empty{}, nil
}

// UnaryServerInterceptor restores request metadata, logs each call and
// maps errors to gRPC status codes.
func UnaryServerInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = incomingContext(ctx)
		start := time.Now()

		resp, err := handler(ctx, req)

		fields := []zap.Field{
			logger.String("method", info.FullMethod),
			logger.String("request_id", RequestID(ctx)),
			logger.Int("forward_depth", ForwardDepth(ctx)),
			logger.Duration("took", time.Since(start)),
		}
		if err != nil {
			log.Warn("rpc failed", append(fields, logger.Error(err))...)
			return nil, toStatus(err)
		}
		log.Debug("rpc", fields...)
		return resp, nil
	}
}

// toStatus maps node errors to gRPC status codes.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, service.ErrInvalidDescriptor), errors.Is(err, ident.ErrInvalidSpan):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrForwardLimit):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, ErrLookupLimit):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, ErrCommunication):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
