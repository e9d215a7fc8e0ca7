package ident

import "fmt"

// ID is a point on the ring. Values are only meaningful together with the
// Space that produced them.
type ID uint64

func (id ID) String() string { return fmt.Sprintf("%x", uint64(id)) }

// IsStrictlyBetween reports whether id lies in the open ring interval (a, b).
// When a == b the interval is the whole ring except a.
func IsStrictlyBetween(id, a, b ID) bool {
	switch {
	case a == b:
		return id != a
	case a < b:
		return id > a && id < b
	default:
		return id > a || id < b
	}
}

// Distance is the clockwise distance from -> to. Comparing distances from a
// common origin orders identifiers of one space along the ring.
func Distance(from, to ID) uint64 {
	return uint64(to) - uint64(from)
}
