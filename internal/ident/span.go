package ident

import "fmt"

// Span is an inclusive interval [Begin, End] on the ring, or the empty span.
// Begin > End denotes a span that wraps past the top of the ring.
type Span struct {
	Begin ID
	End   ID
	empty bool
}

// NewSpan returns [begin, end].
func NewSpan(begin, end ID) Span {
	return Span{Begin: begin, End: end}
}

// EmptySpan returns the span containing nothing.
func EmptySpan() Span {
	return Span{empty: true}
}

// IsEmpty reports whether the span contains nothing.
func (sp Span) IsEmpty() bool { return sp.empty }

// IsPoint reports whether the span holds exactly one identifier.
func (sp Span) IsPoint() bool { return !sp.empty && sp.Begin == sp.End }

// Contains reports whether id lies in [Begin, End].
func (sp Span) Contains(id ID) bool {
	if sp.empty {
		return false
	}
	if sp.Begin <= sp.End {
		return id >= sp.Begin && id <= sp.End
	}
	return id >= sp.Begin || id <= sp.End
}

// ContainsExclusive is Contains without the two endpoints. A point span has
// no interior to exclude and contains its single identifier.
func (sp Span) ContainsExclusive(id ID) bool {
	if !sp.Contains(id) {
		return false
	}
	if sp.Begin == sp.End {
		return true
	}
	return id != sp.Begin && id != sp.End
}

// NarrowLowerBound returns [newBegin, End], or the empty span when newBegin
// is outside sp.
func (sp Span) NarrowLowerBound(newBegin ID) Span {
	if !sp.Contains(newBegin) {
		return EmptySpan()
	}
	return NewSpan(newBegin, sp.End)
}

func (sp Span) String() string {
	if sp.empty {
		return "[]"
	}
	return fmt.Sprintf("[%s, %s]", sp.Begin, sp.End)
}
