package ring

import (
	"fmt"
	"sort"
	"sync"

	"semchord/internal/ident"
)

// NodeRef identifies a node on the ring.
type NodeRef struct {
	Name string
	Addr string
	ID   ident.ID
}

// IsZero reports whether r is the zero reference.
func (r NodeRef) IsZero() bool { return r.Addr == "" }

func (r NodeRef) String() string {
	return fmt.Sprintf("%s@%s(%s)", r.Name, r.Addr, r.ID)
}

// Ring is a sorted view of ring membership.
type Ring struct {
	mu     sync.RWMutex
	nodes  []NodeRef // sorted by ID
	byAddr map[string]NodeRef
}

// NewRing creates an empty ring.
func NewRing() *Ring {
	return &Ring{
		nodes:  make([]NodeRef, 0),
		byAddr: make(map[string]NodeRef),
	}
}

// SetNodes rebuilds the ring with the given nodes. Duplicate addresses keep
// the last occurrence.
func (r *Ring) SetNodes(nodes []NodeRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byAddr = make(map[string]NodeRef, len(nodes))
	for _, n := range nodes {
		r.byAddr[n.Addr] = n
	}
	r.nodes = make([]NodeRef, 0, len(r.byAddr))
	for _, n := range r.byAddr {
		r.nodes = append(r.nodes, n)
	}
	sort.Slice(r.nodes, func(i, j int) bool {
		return r.nodes[i].ID < r.nodes[j].ID
	})
}

// AddNode adds a node to the ring.
func (r *Ring) AddNode(node NodeRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byAddr[node.Addr]; exists {
		return
	}
	r.byAddr[node.Addr] = node

	idx := sort.Search(len(r.nodes), func(i int) bool {
		return r.nodes[i].ID >= node.ID
	})
	r.nodes = append(r.nodes, NodeRef{})
	copy(r.nodes[idx+1:], r.nodes[idx:])
	r.nodes[idx] = node
}

// RemoveNode removes the node listening on addr.
func (r *Ring) RemoveNode(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byAddr[addr]; !exists {
		return
	}
	delete(r.byAddr, addr)

	kept := make([]NodeRef, 0, len(r.nodes))
	for _, n := range r.nodes {
		if n.Addr != addr {
			kept = append(kept, n)
		}
	}
	r.nodes = kept
}

// ResponsibleNode returns the first node at or after id, wrapping around.
// Returns (NodeRef{}, false) if the ring is empty.
func (r *Ring) ResponsibleNode(id ident.ID) (NodeRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.nodes) == 0 {
		return NodeRef{}, false
	}
	return r.nodes[r.indexAtOrAfter(id)], true
}

// Successors returns up to k distinct nodes strictly after position id.
func (r *Ring) Successors(id ident.ID, k int) []NodeRef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.nodes) == 0 || k <= 0 {
		return []NodeRef{}
	}

	start := sort.Search(len(r.nodes), func(i int) bool {
		return r.nodes[i].ID > id
	})
	result := make([]NodeRef, 0, k)
	for i := 0; i < len(r.nodes) && len(result) < k; i++ {
		n := r.nodes[(start+i)%len(r.nodes)]
		if n.ID == id {
			continue
		}
		result = append(result, n)
	}
	return result
}

// Predecessor returns the last node strictly before position id.
func (r *Ring) Predecessor(id ident.ID) (NodeRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.nodes)
	if n == 0 {
		return NodeRef{}, false
	}
	idx := sort.Search(n, func(i int) bool {
		return r.nodes[i].ID >= id
	})
	for i := 1; i <= n; i++ {
		cand := r.nodes[(idx-i+n)%n]
		if cand.ID != id {
			return cand, true
		}
	}
	return NodeRef{}, false
}

// GetNodes returns all nodes in ring order.
func (r *Ring) GetNodes() []NodeRef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]NodeRef, len(r.nodes))
	copy(nodes, r.nodes)
	return nodes
}

// indexAtOrAfter must be called with the lock held on a non-empty ring.
func (r *Ring) indexAtOrAfter(id ident.ID) int {
	idx := sort.Search(len(r.nodes), func(i int) bool {
		return r.nodes[i].ID >= id
	})
	if idx >= len(r.nodes) {
		idx = 0
	}
	return idx
}
