// Package storage provides the per-node entry store. Entries are kept in
// ring order of their identifiers so that interval scans and span queries
// are a single pass over a sorted slice, under one coarse lock.
package storage
