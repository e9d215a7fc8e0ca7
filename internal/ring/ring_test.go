package ring

import (
	"testing"

	"semchord/internal/ident"
)

func ref(name string, id ident.ID) NodeRef {
	return NodeRef{Name: name, Addr: name + ":7000", ID: id}
}

func TestRing_ResponsibleNode(t *testing.T) {
	r := NewRing()
	r.SetNodes([]NodeRef{ref("b", 200), ref("a", 100), ref("c", 300)})

	tests := []struct {
		id   ident.ID
		want string
	}{
		{id: 50, want: "a"},
		{id: 100, want: "a"},
		{id: 101, want: "b"},
		{id: 300, want: "c"},
		{id: 301, want: "a"},
	}
	for _, tt := range tests {
		got, ok := r.ResponsibleNode(tt.id)
		if !ok {
			t.Fatal("expected a responsible node")
		}
		if got.Name != tt.want {
			t.Errorf("ResponsibleNode(%d) = %s, want %s", tt.id, got.Name, tt.want)
		}
	}
}

func TestRing_Empty(t *testing.T) {
	r := NewRing()
	if _, ok := r.ResponsibleNode(1); ok {
		t.Error("empty ring returned a node")
	}
	if _, ok := r.Predecessor(1); ok {
		t.Error("empty ring returned a predecessor")
	}
	if got := r.Successors(1, 3); len(got) != 0 {
		t.Errorf("empty ring returned successors %v", got)
	}
}

func TestRing_SuccessorsAndPredecessor(t *testing.T) {
	r := NewRing()
	r.SetNodes([]NodeRef{ref("a", 100), ref("b", 200), ref("c", 300), ref("d", 400)})

	succ := r.Successors(200, 2)
	if len(succ) != 2 || succ[0].Name != "c" || succ[1].Name != "d" {
		t.Errorf("Successors(200, 2) = %v", succ)
	}

	wrap := r.Successors(400, 10)
	if len(wrap) != 3 || wrap[0].Name != "a" || wrap[2].Name != "c" {
		t.Errorf("Successors(400, 10) = %v", wrap)
	}

	if p, _ := r.Predecessor(100); p.Name != "d" {
		t.Errorf("Predecessor(100) = %s, want d", p.Name)
	}
	if p, _ := r.Predecessor(250); p.Name != "b" {
		t.Errorf("Predecessor(250) = %s, want b", p.Name)
	}
}

func TestRing_AddRemove(t *testing.T) {
	r := NewRing()
	r.AddNode(ref("b", 200))
	r.AddNode(ref("a", 100))
	r.AddNode(ref("a", 100))

	nodes := r.GetNodes()
	if len(nodes) != 2 || nodes[0].Name != "a" {
		t.Fatalf("GetNodes = %v", nodes)
	}

	r.RemoveNode("a:7000")
	r.RemoveNode("missing:7000")
	if got, _ := r.ResponsibleNode(50); got.Name != "b" {
		t.Errorf("after removal ResponsibleNode(50) = %s", got.Name)
	}
}
