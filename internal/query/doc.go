// Package query holds the retrieval request that travels along the ring and
// the result accumulated on the way back.
package query
