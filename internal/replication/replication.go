// Package replication pushes best-effort copies of entry changes to a
// node's successor list. Each target gets its own call on the shared worker
// pool with a detached, time-bounded context. Failures are logged and
// counted, never retried and never reported to the caller.
package replication

import (
	"context"
	"time"

	"semchord/internal/logger"
	"semchord/internal/metrics"
	"semchord/internal/ring"
	"semchord/internal/worker"
)

// DefaultPerReplicaTimeout bounds each replica call.
const DefaultPerReplicaTimeout = 2 * time.Second

// ReplicaFunc performs one replica call against target.
type ReplicaFunc func(ctx context.Context, target ring.NodeRef) error

// Replicator fans replica calls out over a worker pool.
type Replicator struct {
	pool    *worker.Pool
	log     logger.Logger
	timeout time.Duration
}

// NewReplicator creates a replicator running on pool.
func NewReplicator(pool *worker.Pool, log logger.Logger, timeout time.Duration) *Replicator {
	if timeout <= 0 {
		timeout = DefaultPerReplicaTimeout
	}
	return &Replicator{
		pool:    pool,
		log:     log,
		timeout: timeout,
	}
}

// Fanout schedules call for every target and returns immediately. It
// reports how many calls were scheduled; the rest were dropped because the
// pool queue was full or closed.
func (r *Replicator) Fanout(op string, targets []ring.NodeRef, call ReplicaFunc) int {
	scheduled := 0
	for _, target := range targets {
		target := target
		ok := r.pool.TrySubmit(func() {
			r.replicate(op, target, call)
		})
		if !ok {
			metrics.ReplicationDropped.WithLabelValues(op).Inc()
			r.log.Warn("replication dropped, worker queue full",
				logger.String("op", op),
				logger.String("target", target.Addr))
			continue
		}
		scheduled++
	}
	return scheduled
}

func (r *Replicator) replicate(op string, target ring.NodeRef, call ReplicaFunc) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("replication panic for %s to %s: %v", op, target.Addr, p)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := call(ctx, target); err != nil {
		metrics.ReplicationFailures.WithLabelValues(op).Inc()
		r.log.Warn("replication failed",
			logger.String("op", op),
			logger.String("target", target.Addr),
			logger.Error(err))
		return
	}
	r.log.Debug("replicated",
		logger.String("op", op),
		logger.String("target", target.Addr))
}
