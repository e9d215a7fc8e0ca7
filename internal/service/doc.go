// Package service defines the values stored in the ring: service
// descriptors, the provider records that key the entry store, stored
// entries with their QoS attributes, and the QoS predicates applied
// during retrieval.
package service
