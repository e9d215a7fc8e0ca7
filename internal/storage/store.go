package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"semchord/internal/ident"
	"semchord/internal/query"
	"semchord/internal/service"
)

// Store defines the interface for the local entry store.
type Store interface {
	// Put stores e, replacing any entry with the same provider record.
	Put(e service.Entry) error
	// PutAll is Put for each entry, stopping at the first error.
	PutAll(entries []service.Entry) error
	// Remove deletes the entry for record. Absent records are a no-op.
	Remove(record service.Descriptor) error
	// RemoveAll is Remove for each record, stopping at the first error.
	RemoveAll(records []service.Descriptor) error
	// Get returns the entry stored for record.
	Get(record service.Descriptor) (service.Entry, bool)
	// ScanInterval returns every entry whose identifier lies in (from, to].
	ScanInterval(from, to ident.ID) []service.Entry
	// Query returns up to msg.Required entries inside msg.Span accepted by pred.
	Query(msg query.Message, pred service.Predicate) []service.Entry
	// Size is the number of stored entries.
	Size() int
	// Snapshot returns a copy of every entry in ring order.
	Snapshot() []service.Entry
	// Dump renders the store for operators.
	Dump() string
}

// record is one stored entry with its precomputed position.
type record struct {
	id    ident.ID
	key   string
	entry service.Entry
}

// InMemoryStore is an in-memory implementation of Store.
// Records are sorted by identifier, then by record key.
type InMemoryStore struct {
	mu      sync.Mutex
	space   *ident.Space
	records []record
}

// NewInMemoryStore creates an empty store for identifiers of space.
func NewInMemoryStore(space *ident.Space) *InMemoryStore {
	return &InMemoryStore{
		space:   space,
		records: make([]record, 0),
	}
}

// Put stores a copy of e.
func (s *InMemoryStore) Put(e service.Entry) error {
	r, err := s.newRecord(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(r)
	return nil
}

// PutAll stores entries in order.
func (s *InMemoryStore) PutAll(entries []service.Entry) error {
	for _, e := range entries {
		if err := s.Put(e); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the entry for rec.
func (s *InMemoryStore) Remove(rec service.Descriptor) error {
	id, err := s.space.HashIdentifier(rec)
	if err != nil {
		return fmt.Errorf("remove %s: %w", rec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	idx := s.search(id, key)
	if idx < len(s.records) && s.records[idx].id == id && s.records[idx].key == key {
		s.records = append(s.records[:idx], s.records[idx+1:]...)
	}
	return nil
}

// RemoveAll deletes records in order.
func (s *InMemoryStore) RemoveAll(records []service.Descriptor) error {
	for _, rec := range records {
		if err := s.Remove(rec); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a copy of the entry stored for rec.
func (s *InMemoryStore) Get(rec service.Descriptor) (service.Entry, bool) {
	id, err := s.space.HashIdentifier(rec)
	if err != nil {
		return service.Entry{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	idx := s.search(id, key)
	if idx < len(s.records) && s.records[idx].id == id && s.records[idx].key == key {
		return s.records[idx].entry.Clone(), true
	}
	return service.Entry{}, false
}

// ScanInterval walks the ring from the first identifier after from and
// collects entries in (from, to].
func (s *InMemoryStore) ScanInterval(from, to ident.ID) []service.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	if n == 0 {
		return nil
	}

	start := sort.Search(n, func(i int) bool {
		return s.records[i].id > from
	})

	out := make([]service.Entry, 0)
	for i := 0; i < n; i++ {
		r := s.records[(start+i)%n]
		if r.id == to || ident.IsStrictlyBetween(r.id, from, to) {
			out = append(out, r.entry.Clone())
		}
	}
	return out
}

// Query collects matches from the start of the span in ring order. It stops
// once msg.Required matches are collected or the span is left. A nil pred
// accepts every entry.
func (s *InMemoryStore) Query(msg query.Message, pred service.Predicate) []service.Entry {
	if msg.Done() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	if n == 0 {
		return nil
	}

	start := sort.Search(n, func(i int) bool {
		return s.records[i].id >= msg.Span.Begin
	})

	out := make([]service.Entry, 0)
	for i := 0; i < n; i++ {
		if len(out) >= msg.Required {
			break
		}
		r := s.records[(start+i)%n]
		// Identifiers inside the span form one contiguous run from Begin.
		if !msg.Span.Contains(r.id) {
			break
		}
		// Predicates see a copy; stored slices stay private to the store.
		if pred == nil || pred(r.entry.Clone()) {
			out = append(out, r.entry.Clone())
		}
	}
	return out
}

// Size returns the number of entries.
func (s *InMemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Snapshot returns a copy of all entries.
func (s *InMemoryStore) Snapshot() []service.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]service.Entry, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.entry.Clone())
	}
	return out
}

// Dump renders one line per entry with its identifier.
func (s *InMemoryStore) Dump() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "entries (%d):\n", len(s.records))
	for _, r := range s.records {
		fmt.Fprintf(&b, "  %s  %s  qos=%v\n", s.space.Format(r.id), r.entry.Record, r.entry.QoS)
	}
	return b.String()
}

func (s *InMemoryStore) newRecord(e service.Entry) (record, error) {
	if err := e.Validate(); err != nil {
		return record{}, fmt.Errorf("put: %w", err)
	}
	id, err := s.space.HashIdentifier(e.Record)
	if err != nil {
		return record{}, fmt.Errorf("put: %w", err)
	}
	return record{id: id, key: e.Record.Key(), entry: e.Clone()}, nil
}

// put inserts or replaces r (must be called with lock held).
func (s *InMemoryStore) put(r record) {
	idx := s.search(r.id, r.key)
	if idx < len(s.records) && s.records[idx].id == r.id && s.records[idx].key == r.key {
		s.records[idx] = r
		return
	}
	s.records = append(s.records, record{})
	copy(s.records[idx+1:], s.records[idx:])
	s.records[idx] = r
}

// search returns the first index whose (id, key) is >= the target
// (must be called with lock held).
func (s *InMemoryStore) search(id ident.ID, key string) int {
	return sort.Search(len(s.records), func(i int) bool {
		r := s.records[i]
		if r.id != id {
			return r.id > id
		}
		return r.key >= key
	})
}
