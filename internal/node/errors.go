package node

import "errors"

var (
	// ErrCommunication wraps transport failures when reaching a peer.
	ErrCommunication = errors.New("peer communication failed")
	// ErrForwardLimit is returned when a request was forwarded to a
	// predecessor more often than the node allows.
	ErrForwardLimit = errors.New("forward limit exceeded")
	// ErrLookupLimit is returned when a successor lookup took more routing
	// hops than the node allows.
	ErrLookupLimit = errors.New("lookup hop limit exceeded")
	// ErrNotRunning is returned by lifecycle calls on a node whose endpoint
	// is closed or was never opened.
	ErrNotRunning = errors.New("node not running")
)
