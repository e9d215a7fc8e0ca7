package node

import (
	"context"
	"fmt"

	"semchord/internal/ident"
	"semchord/internal/metrics"
	"semchord/internal/query"
	"semchord/internal/service"
	"semchord/internal/task"
)

// route returns the peer responsible for id. The local node is returned
// as itself so local calls skip the transport.
func (n *Node) route(ctx context.Context, id ident.ID) (Peer, error) {
	owner, err := n.FindSuccessor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", n.space.Format(id), err)
	}
	if owner.Addr == n.self.Addr {
		return n, nil
	}
	return n.transport.Dial(owner)
}

// Insert stores e on the node responsible for it.
func (n *Node) Insert(ctx context.Context, e service.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	id, err := n.space.HashIdentifier(e.Record)
	if err != nil {
		return err
	}
	p, err := n.route(ctx, id)
	if err != nil {
		return err
	}
	return p.InsertEntry(ctx, e)
}

// Remove deletes the entry for record from the node responsible for it.
func (n *Node) Remove(ctx context.Context, record service.Descriptor) error {
	if !record.FullySpecified() {
		return fmt.Errorf("remove %s: provider record required: %w", record, service.ErrInvalidDescriptor)
	}
	id, err := n.space.HashIdentifier(record)
	if err != nil {
		return err
	}
	p, err := n.route(ctx, id)
	if err != nil {
		return err
	}
	return p.RemoveEntry(ctx, record)
}

// Retrieve runs msg starting at the node responsible for the span's lower
// bound. The result may hold fewer entries than requested.
func (n *Node) Retrieve(ctx context.Context, msg query.Message) (*query.Result, error) {
	if msg.Done() {
		return query.NewResult(), nil
	}
	if err := n.space.ValidateSpan(msg.Span); err != nil {
		return nil, err
	}
	p, err := n.route(ctx, msg.Span.Begin)
	if err != nil {
		return nil, err
	}
	res, err := p.RetrieveEntries(ctx, msg)
	if err != nil {
		return nil, err
	}
	metrics.RetrieveHops.Observe(float64(res.Hops))
	return res, nil
}

// Lookup builds a query for d and runs it.
func (n *Node) Lookup(ctx context.Context, d service.Descriptor, c service.Constraints, required int) (*query.Result, error) {
	msg, err := query.NewMessage(n.space, d, c, required)
	if err != nil {
		return nil, err
	}
	return n.Retrieve(ctx, msg)
}

// InsertAsync runs Insert on the node's worker pool.
func (n *Node) InsertAsync(ctx context.Context, e service.Entry) *task.Future[struct{}] {
	return task.Submit(ctx, n.pool, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.Insert(ctx, e)
	})
}

// RemoveAsync runs Remove on the node's worker pool.
func (n *Node) RemoveAsync(ctx context.Context, record service.Descriptor) *task.Future[struct{}] {
	return task.Submit(ctx, n.pool, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.Remove(ctx, record)
	})
}

// RetrieveAsync runs Retrieve on the node's worker pool.
func (n *Node) RetrieveAsync(ctx context.Context, msg query.Message) *task.Future[*query.Result] {
	return task.Submit(ctx, n.pool, func(ctx context.Context) (*query.Result, error) {
		return n.Retrieve(ctx, msg)
	})
}
