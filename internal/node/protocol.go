package node

import (
	"context"
	"errors"
	"fmt"

	"semchord/internal/ident"
	"semchord/internal/logger"
	"semchord/internal/metrics"
	"semchord/internal/query"
	"semchord/internal/ring"
	"semchord/internal/service"
)

// staleFor reports whether id belongs to a node before this one. In that
// case a node joined between the predecessor and the caller's idea of the
// ring, and the request goes to the predecessor.
func (n *Node) staleFor(id ident.ID) (ring.NodeRef, bool) {
	pred, ok := n.refs.Predecessor()
	if !ok {
		return ring.NodeRef{}, false
	}
	if id == n.self.ID || ident.IsStrictlyBetween(id, pred.ID, n.self.ID) {
		return ring.NodeRef{}, false
	}
	return pred, true
}

// forwardTo dials target for a forwarded request, enforcing the forward cap.
func (n *Node) forwardTo(ctx context.Context, op string, target ring.NodeRef) (context.Context, Peer, error) {
	depth := ForwardDepth(ctx)
	if depth >= n.maxForwards {
		metrics.ForwardLimitExceeded.WithLabelValues(op).Inc()
		return nil, nil, fmt.Errorf("%s at %s after %d forwards: %w", op, n.self.Name, depth, ErrForwardLimit)
	}
	p, err := n.transport.Dial(target)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: forward to %s: %w", op, target.Addr, err)
	}
	metrics.Forwards.WithLabelValues(op).Inc()
	n.log.Debug("forwarding",
		logger.String("op", op),
		logger.String("to", target.Addr),
		logger.Int("depth", depth+1),
		logger.String("request_id", RequestID(ctx)))
	return withForwardDepth(ctx, depth+1), p, nil
}

// lookupTo dials the next hop of a successor lookup, enforcing the lookup
// hop cap. Lookup hops never count as stale-responsibility forwards.
func (n *Node) lookupTo(ctx context.Context, target ring.NodeRef) (context.Context, Peer, error) {
	hops := LookupHops(ctx)
	if hops >= n.maxLookupHops {
		metrics.ForwardLimitExceeded.WithLabelValues("find_successor").Inc()
		return nil, nil, fmt.Errorf("find_successor at %s after %d hops: %w", n.self.Name, hops, ErrLookupLimit)
	}
	p, err := n.transport.Dial(target)
	if err != nil {
		return nil, nil, fmt.Errorf("find_successor: next hop %s: %w", target.Addr, err)
	}
	return withLookupHops(ctx, hops+1), p, nil
}

// InsertEntry stores e if this node is responsible for it and pushes
// replicas to the successor list. Otherwise the call moves to the
// predecessor.
func (n *Node) InsertEntry(ctx context.Context, e service.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	id, err := n.space.HashIdentifier(e.Record)
	if err != nil {
		return err
	}

	if pred, stale := n.staleFor(id); stale {
		fctx, p, err := n.forwardTo(ctx, "insert", pred)
		if err != nil {
			return err
		}
		return p.InsertEntry(fctx, e)
	}

	if err := n.store.Put(e); err != nil {
		return err
	}
	n.updateStoredGauge()
	n.log.Debug("entry stored",
		logger.Stringer("record", e.Record),
		logger.String("id", n.space.Format(id)))

	replica := []service.Entry{e.Clone()}
	n.replicator.Fanout("insert", n.refs.Successors(), func(ctx context.Context, target ring.NodeRef) error {
		p, err := n.transport.Dial(target)
		if err != nil {
			return err
		}
		return p.InsertReplicas(ctx, replica)
	})
	return nil
}

// RemoveEntry is the removal counterpart of InsertEntry. Replicas are
// removed by key only.
func (n *Node) RemoveEntry(ctx context.Context, record service.Descriptor) error {
	if !record.FullySpecified() {
		return fmt.Errorf("remove %s: provider record required: %w", record, service.ErrInvalidDescriptor)
	}
	id, err := n.space.HashIdentifier(record)
	if err != nil {
		return err
	}

	if pred, stale := n.staleFor(id); stale {
		fctx, p, err := n.forwardTo(ctx, "remove", pred)
		if err != nil {
			return err
		}
		return p.RemoveEntry(fctx, record)
	}

	if err := n.store.Remove(record); err != nil {
		return err
	}
	n.updateStoredGauge()

	keys := []service.Descriptor{record.Clone()}
	n.replicator.Fanout("remove", n.refs.Successors(), func(ctx context.Context, target ring.NodeRef) error {
		p, err := n.transport.Dial(target)
		if err != nil {
			return err
		}
		return p.RemoveReplicas(ctx, n.self.ID, keys)
	})
	return nil
}

// RetrieveEntries answers msg from the local store and continues on the
// successor while the span extends past this node and results are missing.
// A failing continuation degrades to the results gathered so far.
func (n *Node) RetrieveEntries(ctx context.Context, msg query.Message) (*query.Result, error) {
	if msg.Done() {
		return query.NewResult(), nil
	}
	if err := n.space.ValidateSpan(msg.Span); err != nil {
		return nil, err
	}

	if pred, stale := n.staleFor(msg.Span.Begin); stale {
		fctx, p, err := n.forwardTo(ctx, "retrieve", pred)
		if err != nil {
			return nil, err
		}
		return p.RetrieveEntries(fctx, msg)
	}

	res := query.NewResult(n.store.Query(msg, n.matcher(msg.Constraints))...)
	remaining := msg.Required - res.Len()
	if remaining <= 0 {
		return res, nil
	}

	// Continue only when the span runs through this node and past it, so
	// every hop strictly shrinks the span.
	succ, ok := n.refs.Successor()
	next := n.space.Add(n.self.ID, 1)
	if !ok || !msg.Span.Contains(n.self.ID) || !msg.Span.Contains(next) {
		return res, nil
	}

	p, err := n.transport.Dial(succ)
	if err == nil {
		var down *query.Result
		down, err = p.RetrieveEntries(ctx, msg.Narrow(next, remaining))
		if err == nil {
			res.Merge(down)
			return res, nil
		}
	}

	metrics.RetrieveDegraded.Inc()
	n.log.Warn("retrieve continuation failed, returning partial result",
		logger.String("successor", succ.Addr),
		logger.Int("found", res.Len()),
		logger.Int("required", msg.Required),
		logger.Error(err))
	return res, nil
}

// InsertReplicas stores replicas pushed by a predecessor. There is no
// responsibility check.
func (n *Node) InsertReplicas(_ context.Context, entries []service.Entry) error {
	if err := n.store.PutAll(entries); err != nil {
		return err
	}
	n.updateStoredGauge()
	return nil
}

// RemoveReplicas drops the given replica keys. With no keys it drops every
// entry in (self, boundary), which a predecessor asks for after this node
// fell off its successor list.
func (n *Node) RemoveReplicas(_ context.Context, boundary ident.ID, records []service.Descriptor) error {
	if len(records) > 0 {
		if err := n.store.RemoveAll(records); err != nil {
			return err
		}
		n.updateStoredGauge()
		return nil
	}

	if boundary == n.self.ID {
		return nil
	}

	stale := make([]service.Descriptor, 0)
	for _, e := range n.store.ScanInterval(n.self.ID, boundary) {
		id, err := n.space.HashIdentifier(e.Record)
		if err != nil {
			return err
		}
		if id == boundary {
			continue
		}
		stale = append(stale, e.Record)
	}
	if err := n.store.RemoveAll(stale); err != nil {
		return err
	}
	n.updateStoredGauge()
	n.log.Debug("replica cleanup",
		logger.String("boundary", n.space.Format(boundary)),
		logger.Int("removed", len(stale)))
	return nil
}

// Notify tells this node that candidate believes it is its predecessor.
// It returns the predecessor (or candidate when there is none) followed by
// the successor list, then applies the predecessor policy.
func (n *Node) Notify(_ context.Context, candidate ring.NodeRef) ([]ring.NodeRef, error) {
	n.notifyMu.Lock()
	defer n.notifyMu.Unlock()

	view := n.ringView(candidate)
	n.adopt(candidate)
	return view, nil
}

// NotifyAndCopyEntries is Notify for a joining node. It also returns the
// entries in (self, candidate] so the candidate can take them over.
func (n *Node) NotifyAndCopyEntries(_ context.Context, candidate ring.NodeRef) ([]ring.NodeRef, []service.Entry, error) {
	n.notifyMu.Lock()
	defer n.notifyMu.Unlock()

	view := n.ringView(candidate)
	entries := n.store.ScanInterval(n.self.ID, candidate.ID)
	n.adopt(candidate)

	n.log.Debug("entries copied to joining node",
		logger.String("candidate", candidate.Addr),
		logger.Int("count", len(entries)))
	return view, entries, nil
}

// ringView must be called with notifyMu held.
func (n *Node) ringView(candidate ring.NodeRef) []ring.NodeRef {
	pred, ok := n.refs.Predecessor()
	if !ok {
		pred = candidate
	}
	return append([]ring.NodeRef{pred}, n.refs.Successors()...)
}

func (n *Node) adopt(candidate ring.NodeRef) {
	if candidate.IsZero() {
		return
	}
	if n.refs.AdoptPredecessor(candidate) {
		n.log.Info("predecessor changed", logger.String("predecessor", candidate.Addr))
	}
}

// LeavesNetwork is sent by a departing predecessor. The old predecessor is
// dropped and the departing node's own predecessor, if any, takes its place.
func (n *Node) LeavesNetwork(_ context.Context, newPredecessor ring.NodeRef) error {
	n.notifyMu.Lock()
	defer n.notifyMu.Unlock()

	if old, ok := n.refs.Predecessor(); ok {
		n.refs.RemoveReference(old.Addr)
	}
	if !newPredecessor.IsZero() && newPredecessor.Addr != n.self.Addr {
		n.refs.AdoptPredecessor(newPredecessor)
	}
	n.log.Info("predecessor left", logger.String("new_predecessor", newPredecessor.Addr))
	return nil
}

// FindSuccessor returns the node responsible for id, walking the ring
// through the closest preceding finger or successor.
func (n *Node) FindSuccessor(ctx context.Context, id ident.ID) (ring.NodeRef, error) {
	if pred, ok := n.refs.Predecessor(); ok {
		if id == n.self.ID || ident.IsStrictlyBetween(id, pred.ID, n.self.ID) {
			return n.self, nil
		}
	}

	succ, ok := n.refs.Successor()
	if !ok {
		return n.self, nil
	}
	if id == succ.ID || ident.IsStrictlyBetween(id, n.self.ID, succ.ID) {
		return succ, nil
	}

	next, ok := n.refs.ClosestPreceding(id)
	if !ok {
		return succ, nil
	}

	fctx, p, err := n.lookupTo(ctx, next)
	if err != nil {
		return ring.NodeRef{}, err
	}
	found, err := p.FindSuccessor(fctx, id)
	if err != nil && errors.Is(err, ErrCommunication) && next.Addr != succ.Addr {
		// Fall back to walking the successor chain.
		n.refs.RemoveReference(next.Addr)
		if fctx, p, err = n.lookupTo(ctx, succ); err != nil {
			return ring.NodeRef{}, err
		}
		found, err = p.FindSuccessor(fctx, id)
	}
	return found, err
}

// Ping answers liveness checks.
func (n *Node) Ping(context.Context) error { return nil }
