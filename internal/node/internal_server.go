package node

import (
	"context"

	"semchord/internal/ident"
	"semchord/internal/wire"
)

// InsertReplicas handles replica pushes from a predecessor.
func (s *Server) InsertReplicas(ctx context.Context, req *wire.InsertReplicasRequest) (*wire.Empty, error) {
	if err := s.node.InsertReplicas(ctx, entriesFromWire(req.Entries)); err != nil {
		return nil, err
	}
	return &wire.Empty{}, nil
}

// RemoveReplicas handles replica removals and bulk cleanup.
func (s *Server) RemoveReplicas(ctx context.Context, req *wire.RemoveReplicasRequest) (*wire.Empty, error) {
	if err := s.node.RemoveReplicas(ctx, ident.ID(req.Boundary), descriptorsFromWire(req.Records)); err != nil {
		return nil, err
	}
	return &wire.Empty{}, nil
}
