package ring

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"semchord/internal/ident"
)

// References is one node's predecessor, successor list and finger table.
// All methods are safe for concurrent use.
type References struct {
	mu            sync.RWMutex
	self          NodeRef
	pred          *NodeRef
	successors    []NodeRef // ring order from self
	maxSuccessors int
	fingers       map[int]NodeRef // k -> successor of self+2^k
}

// NewReferences returns an empty view for self keeping at most maxSuccessors
// successors.
func NewReferences(self NodeRef, maxSuccessors int) *References {
	if maxSuccessors <= 0 {
		maxSuccessors = 3
	}
	return &References{
		self:          self,
		successors:    make([]NodeRef, 0, maxSuccessors),
		maxSuccessors: maxSuccessors,
		fingers:       make(map[int]NodeRef),
	}
}

// Self returns the owning node.
func (r *References) Self() NodeRef { return r.self }

// Predecessor returns the current predecessor, if any.
func (r *References) Predecessor() (NodeRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.pred == nil {
		return NodeRef{}, false
	}
	return *r.pred, true
}

// Successor returns the immediate successor, if any.
func (r *References) Successor() (NodeRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.successors) == 0 {
		return NodeRef{}, false
	}
	return r.successors[0], true
}

// Successors returns the successor list in ring order.
func (r *References) Successors() []NodeRef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]NodeRef, len(r.successors))
	copy(out, r.successors)
	return out
}

// MaxSuccessors is the successor list capacity.
func (r *References) MaxSuccessors() int { return r.maxSuccessors }

// AdoptPredecessor applies the predecessor policy: the candidate replaces the
// current predecessor when there is none or when it lies strictly between the
// current predecessor and self. The candidate is also offered to the
// successor list. Reports whether the predecessor changed.
func (r *References) AdoptPredecessor(candidate NodeRef) bool {
	if candidate.Addr == r.self.Addr {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.addSuccessorLocked(candidate)

	if r.pred != nil && r.pred.Addr == candidate.Addr {
		return false
	}
	if r.pred == nil || ident.IsStrictlyBetween(candidate.ID, r.pred.ID, r.self.ID) {
		c := candidate
		r.pred = &c
		return true
	}
	return false
}

// SetPredecessor replaces the predecessor unconditionally.
func (r *References) SetPredecessor(p NodeRef) {
	if p.Addr == r.self.Addr {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pred = &p
}

// RemovePredecessorReference drops the predecessor.
func (r *References) RemovePredecessorReference() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pred = nil
}

// AddSuccessor inserts candidate into the successor list in ring order.
func (r *References) AddSuccessor(candidate NodeRef) {
	if candidate.Addr == r.self.Addr {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addSuccessorLocked(candidate)
}

// SetSuccessors replaces the successor list and returns the references that
// were dropped from it.
func (r *References) SetSuccessors(list []NodeRef) []NodeRef {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.successors
	r.successors = make([]NodeRef, 0, r.maxSuccessors)
	for _, c := range list {
		if c.Addr == r.self.Addr {
			continue
		}
		r.addSuccessorLocked(c)
	}

	kept := make(map[string]struct{}, len(r.successors))
	for _, s := range r.successors {
		kept[s.Addr] = struct{}{}
	}
	dropped := make([]NodeRef, 0)
	for _, s := range old {
		if _, ok := kept[s.Addr]; !ok {
			dropped = append(dropped, s)
		}
	}
	return dropped
}

// SetFinger records ref as the successor of self+2^k. A reference to self
// clears the finger.
func (r *References) SetFinger(k int, ref NodeRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ref.IsZero() || ref.Addr == r.self.Addr {
		delete(r.fingers, k)
		return
	}
	r.fingers[k] = ref
}

// Finger returns finger k, if set.
func (r *References) Finger(k int) (NodeRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fingers[k]
	return f, ok
}

// RemoveReference forgets every reference to addr. Reports whether anything
// was removed.
func (r *References) RemoveReference(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := false
	if r.pred != nil && r.pred.Addr == addr {
		r.pred = nil
		removed = true
	}
	kept := r.successors[:0]
	for _, s := range r.successors {
		if s.Addr == addr {
			removed = true
			continue
		}
		kept = append(kept, s)
	}
	r.successors = kept
	for k, f := range r.fingers {
		if f.Addr == addr {
			delete(r.fingers, k)
			removed = true
		}
	}
	return removed
}

// ClosestPreceding returns the known node that lies strictly between self
// and id and is furthest from self.
func (r *References) ClosestPreceding(id ident.ID) (NodeRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best NodeRef
	found := false
	consider := func(c NodeRef) {
		if !ident.IsStrictlyBetween(c.ID, r.self.ID, id) {
			return
		}
		if !found || ident.Distance(r.self.ID, c.ID) > ident.Distance(r.self.ID, best.ID) {
			best = c
			found = true
		}
	}
	for _, f := range r.fingers {
		consider(f)
	}
	for _, s := range r.successors {
		consider(s)
	}
	if r.pred != nil {
		consider(*r.pred)
	}
	return best, found
}

// Known returns every distinct reference held: the predecessor, then the
// successors in ring order, then fingers by index.
func (r *References) Known() []NodeRef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]NodeRef, 0, len(r.successors)+len(r.fingers)+1)
	seen := make(map[string]struct{})
	add := func(c NodeRef) {
		if _, ok := seen[c.Addr]; ok {
			return
		}
		seen[c.Addr] = struct{}{}
		out = append(out, c)
	}
	if r.pred != nil {
		add(*r.pred)
	}
	for _, s := range r.successors {
		add(s)
	}
	ks := make([]int, 0, len(r.fingers))
	for k := range r.fingers {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	for _, k := range ks {
		add(r.fingers[k])
	}
	return out
}

func (r *References) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "self=%s pred=", r.self)
	if r.pred != nil {
		b.WriteString(r.pred.String())
	} else {
		b.WriteString("none")
	}
	b.WriteString(" successors=[")
	for i, s := range r.successors {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.String())
	}
	b.WriteString("]")
	return b.String()
}

// addSuccessorLocked must be called with the write lock held.
func (r *References) addSuccessorLocked(c NodeRef) {
	if c.Addr == r.self.Addr {
		return
	}
	for i, s := range r.successors {
		if s.Addr == c.Addr {
			r.successors[i] = c
			return
		}
	}
	r.successors = append(r.successors, c)
	sort.SliceStable(r.successors, func(i, j int) bool {
		return ident.Distance(r.self.ID, r.successors[i].ID) < ident.Distance(r.self.ID, r.successors[j].ID)
	})
	if len(r.successors) > r.maxSuccessors {
		r.successors = r.successors[:r.maxSuccessors]
	}
}
