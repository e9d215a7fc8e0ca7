// Package ident maps service descriptors onto the ring's identifier space.
//
// An identifier is the concatenation of one fixed-width slice per semantic
// slot followed by a provider slice. Each slice is the leading bits of the
// SHA-1 digest of the attribute text. Descriptors with trailing attributes
// left out become spans: the missing slots are zero in the span's begin and
// all ones in its end, so every identifier consistent with the descriptor
// lies inside the span.
//
// The provider width is derived from the expected network size and the
// expected number of providers sharing one semantic descriptor, so that
// providers of a popular service still spread over several nodes.
package ident
