// Package gossip implements a simplified SWIM-style failure detector for
// ring members.
//
// Limitations:
// - Membership never changes the ring directly; a subscriber turns suspect
//   and dead members into dropped references on the local node
// - No indirect probes
// - Dead members are forgotten after a timeout and may be rediscovered
package gossip
