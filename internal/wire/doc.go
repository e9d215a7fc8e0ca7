// Package wire defines the messages and gRPC service descriptors spoken
// between nodes.
//
// Messages are encoded in the protobuf binary format with protowire and
// carried by a gRPC codec registered under CodecName. Clients in this
// package always select that codec, so peers agree on the encoding without
// generated code.
package wire
