package ident

import "testing"

func TestIsStrictlyBetween(t *testing.T) {
	tests := []struct {
		name    string
		id, a, b ID
		want    bool
	}{
		{name: "inside", id: 5, a: 1, b: 10, want: true},
		{name: "lower bound", id: 1, a: 1, b: 10, want: false},
		{name: "upper bound", id: 10, a: 1, b: 10, want: false},
		{name: "outside", id: 11, a: 1, b: 10, want: false},
		{name: "wrap high side", id: 20, a: 15, b: 3, want: true},
		{name: "wrap low side", id: 2, a: 15, b: 3, want: true},
		{name: "wrap outside", id: 10, a: 15, b: 3, want: false},
		{name: "wrap upper bound", id: 3, a: 15, b: 3, want: false},
		{name: "equal bounds other id", id: 4, a: 7, b: 7, want: true},
		{name: "equal bounds same id", id: 7, a: 7, b: 7, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStrictlyBetween(tt.id, tt.a, tt.b); got != tt.want {
				t.Errorf("IsStrictlyBetween(%d, %d, %d) = %v, want %v", tt.id, tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSpan_Contains(t *testing.T) {
	plain := NewSpan(10, 20)
	wrapped := NewSpan(50, 5)

	checks := []struct {
		sp   Span
		id   ID
		want bool
	}{
		{plain, 10, true},
		{plain, 20, true},
		{plain, 15, true},
		{plain, 9, false},
		{plain, 21, false},
		{wrapped, 50, true},
		{wrapped, 60, true},
		{wrapped, 0, true},
		{wrapped, 5, true},
		{wrapped, 6, false},
		{wrapped, 49, false},
		{EmptySpan(), 0, false},
	}
	for _, c := range checks {
		if got := c.sp.Contains(c.id); got != c.want {
			t.Errorf("%v.Contains(%d) = %v, want %v", c.sp, c.id, got, c.want)
		}
	}
}

func TestSpan_ContainsExclusive(t *testing.T) {
	sp := NewSpan(10, 20)
	if sp.ContainsExclusive(10) || sp.ContainsExclusive(20) {
		t.Error("endpoints should be excluded")
	}
	if !sp.ContainsExclusive(11) {
		t.Error("interior should be included")
	}

	wrapped := NewSpan(50, 5)
	if wrapped.ContainsExclusive(50) || wrapped.ContainsExclusive(5) {
		t.Error("wrapped endpoints should be excluded")
	}
	if !wrapped.ContainsExclusive(0) {
		t.Error("wrapped interior should be included")
	}

	point := NewSpan(7, 7)
	if !point.ContainsExclusive(7) {
		t.Error("point span should contain its identifier")
	}
}

func TestSpan_NarrowLowerBound(t *testing.T) {
	sp := NewSpan(10, 20)

	n := sp.NarrowLowerBound(15)
	if n.IsEmpty() || n.Begin != 15 || n.End != 20 {
		t.Errorf("NarrowLowerBound(15) = %v", n)
	}
	if !sp.NarrowLowerBound(21).IsEmpty() {
		t.Error("narrowing outside the span should be empty")
	}
	if !EmptySpan().NarrowLowerBound(0).IsEmpty() {
		t.Error("narrowing the empty span should stay empty")
	}

	wrapped := NewSpan(50, 5).NarrowLowerBound(2)
	if wrapped.Begin != 2 || wrapped.End != 5 {
		t.Errorf("wrapped narrowing = %v", wrapped)
	}
}
