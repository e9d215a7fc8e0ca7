// Package ring holds the node's view of the Chord ring.
//
// Ring is a sorted membership view: given the set of live nodes it answers
// which node is responsible for an identifier and which nodes follow or
// precede a position. References is the per-node view the protocol
// consults on every call: the current predecessor and the successor list,
// which doubles as the replica set.
package ring
