package query

import "semchord/internal/service"

// Result accumulates matched entries, deduplicated by provider record, and
// counts the hops that contributed. It is not safe for concurrent use.
type Result struct {
	Hops    int
	entries []service.Entry
	index   map[string]int
}

// NewResult returns a result seeded with entries and one hop.
func NewResult(entries ...service.Entry) *Result {
	r := &Result{Hops: 1, index: make(map[string]int)}
	r.Add(entries...)
	return r
}

// Add inserts entries not already present.
func (r *Result) Add(entries ...service.Entry) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	for _, e := range entries {
		key := e.Record.Key()
		if _, ok := r.index[key]; ok {
			continue
		}
		r.index[key] = len(r.entries)
		r.entries = append(r.entries, e)
	}
}

// Merge folds a downstream result into r: entries are unioned and hop counts
// summed.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Add(other.entries...)
	r.Hops += other.Hops
}

// Entries returns the matched entries in insertion order.
func (r *Result) Entries() []service.Entry {
	out := make([]service.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len is the number of distinct entries.
func (r *Result) Len() int { return len(r.entries) }

// Contains reports whether an entry for record is present.
func (r *Result) Contains(record service.Descriptor) bool {
	_, ok := r.index[record.Key()]
	return ok
}
