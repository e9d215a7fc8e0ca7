// Package metrics exposes the node's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Forwards counts stale-responsibility forwards to a predecessor, by operation.
	Forwards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semchord_forwards_total",
		Help: "Requests forwarded to the predecessor because responsibility moved.",
	}, []string{"op"})

	// ForwardLimitExceeded counts requests rejected by the forward depth cap.
	ForwardLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semchord_forward_limit_exceeded_total",
		Help: "Requests rejected because the forward depth cap was reached.",
	}, []string{"op"})

	// ReplicationFailures counts replica calls that returned an error.
	ReplicationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semchord_replication_failures_total",
		Help: "Replica calls that failed and were discarded.",
	}, []string{"op"})

	// ReplicationDropped counts replica calls never started because the pool was full.
	ReplicationDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semchord_replication_dropped_total",
		Help: "Replica calls dropped because the worker queue was full.",
	}, []string{"op"})

	// RetrieveHops observes the hop count of completed retrievals.
	RetrieveHops = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "semchord_retrieve_hops",
		Help:    "Hops that contributed to a retrieval result.",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})

	// RetrieveDegraded counts retrievals that returned a partial result after a downstream failure.
	RetrieveDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "semchord_retrieve_degraded_total",
		Help: "Retrievals that returned local results after a downstream hop failed.",
	})

	// StoredEntries reports the entry store size per node.
	StoredEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "semchord_stored_entries",
		Help: "Entries held in the local store.",
	}, []string{"node"})
)
