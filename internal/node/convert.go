package node

import (
	"semchord/internal/ident"
	"semchord/internal/query"
	"semchord/internal/ring"
	"semchord/internal/service"
	"semchord/internal/wire"
)

func descriptorToWire(d service.Descriptor) wire.Descriptor {
	return wire.Descriptor{
		Semantic: append([]string(nil), d.Semantic...),
		Provider: d.Provider,
	}
}

func descriptorFromWire(d wire.Descriptor) service.Descriptor {
	return service.Descriptor{
		Semantic: append([]string(nil), d.Semantic...),
		Provider: d.Provider,
	}
}

func descriptorsToWire(ds []service.Descriptor) []wire.Descriptor {
	out := make([]wire.Descriptor, 0, len(ds))
	for _, d := range ds {
		out = append(out, descriptorToWire(d))
	}
	return out
}

func descriptorsFromWire(ds []wire.Descriptor) []service.Descriptor {
	out := make([]service.Descriptor, 0, len(ds))
	for _, d := range ds {
		out = append(out, descriptorFromWire(d))
	}
	return out
}

func entryToWire(e service.Entry) wire.Entry {
	return wire.Entry{
		Record: descriptorToWire(e.Record),
		QoS:    append([]string(nil), e.QoS...),
	}
}

func entryFromWire(e wire.Entry) service.Entry {
	return service.Entry{
		Record: descriptorFromWire(e.Record),
		QoS:    append([]string(nil), e.QoS...),
	}
}

func entriesToWire(entries []service.Entry) []wire.Entry {
	out := make([]wire.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryToWire(e))
	}
	return out
}

func entriesFromWire(entries []wire.Entry) []service.Entry {
	out := make([]service.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryFromWire(e))
	}
	return out
}

func refToWire(r ring.NodeRef) wire.NodeRef {
	return wire.NodeRef{Name: r.Name, Addr: r.Addr, ID: uint64(r.ID)}
}

func refFromWire(r wire.NodeRef) ring.NodeRef {
	return ring.NodeRef{Name: r.Name, Addr: r.Addr, ID: ident.ID(r.ID)}
}

func refsToWire(refs []ring.NodeRef) []wire.NodeRef {
	out := make([]wire.NodeRef, 0, len(refs))
	for _, r := range refs {
		out = append(out, refToWire(r))
	}
	return out
}

func refsFromWire(refs []wire.NodeRef) []ring.NodeRef {
	out := make([]ring.NodeRef, 0, len(refs))
	for _, r := range refs {
		out = append(out, refFromWire(r))
	}
	return out
}

func spanToWire(sp ident.Span) wire.Span {
	if sp.IsEmpty() {
		return wire.Span{Empty: true}
	}
	return wire.Span{Begin: uint64(sp.Begin), End: uint64(sp.End)}
}

func spanFromWire(sp wire.Span) ident.Span {
	if sp.Empty {
		return ident.EmptySpan()
	}
	return ident.NewSpan(ident.ID(sp.Begin), ident.ID(sp.End))
}

func messageToWire(m query.Message) *wire.RetrieveRequest {
	return &wire.RetrieveRequest{
		Descriptor:  descriptorToWire(m.Descriptor),
		Constraints: append([]string(nil), m.Constraints.Attributes...),
		Required:    int64(m.Required),
		Span:        spanToWire(m.Span),
	}
}

func messageFromWire(req *wire.RetrieveRequest) query.Message {
	return query.Message{
		Descriptor:  descriptorFromWire(req.Descriptor),
		Constraints: service.Constraints{Attributes: append([]string(nil), req.Constraints...)},
		Required:    int(req.Required),
		Span:        spanFromWire(req.Span),
	}
}

func resultToWire(r *query.Result) *wire.RetrieveResponse {
	return &wire.RetrieveResponse{
		Entries: entriesToWire(r.Entries()),
		Hops:    int64(r.Hops),
	}
}

func resultFromWire(resp *wire.RetrieveResponse) *query.Result {
	r := query.NewResult(entriesFromWire(resp.Entries)...)
	r.Hops = int(resp.Hops)
	return r
}
