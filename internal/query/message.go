package query

import (
	"fmt"

	"semchord/internal/ident"
	"semchord/internal/service"
)

// Message is an immutable retrieval request. Each forwarding hop works on a
// narrowed copy produced by Narrow.
type Message struct {
	Descriptor  service.Descriptor
	Constraints service.Constraints
	Required    int
	Span        ident.Span
}

// NewMessage derives the span for d and builds a request for up to required
// matching entries.
func NewMessage(space *ident.Space, d service.Descriptor, c service.Constraints, required int) (Message, error) {
	sp, err := space.SpanFor(d)
	if err != nil {
		return Message{}, fmt.Errorf("build query: %w", err)
	}
	return Message{
		Descriptor:  d.Clone(),
		Constraints: service.Constraints{Attributes: append([]string(nil), c.Attributes...)},
		Required:    required,
		Span:        sp,
	}, nil
}

// Narrow returns the continuation sent to the next node: the lower bound is
// raised to newBegin and only remaining results are requested. The upper
// bound never changes.
func (m Message) Narrow(newBegin ident.ID, remaining int) Message {
	next := m
	next.Span = m.Span.NarrowLowerBound(newBegin)
	next.Required = remaining
	return next
}

// Done reports whether the message asks for nothing.
func (m Message) Done() bool {
	return m.Required <= 0 || m.Span.IsEmpty()
}

func (m Message) String() string {
	return fmt.Sprintf("query{%s span=%s required=%d qos=%v}", m.Descriptor, m.Span, m.Required, m.Constraints.Attributes)
}
