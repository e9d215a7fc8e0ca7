package wire

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Empty carries no fields.
type Empty struct{}

func (m *Empty) appendTo(b []byte) []byte { return b }
func (m *Empty) unmarshal(b []byte) error {
	return walk(b, func(field) error { return nil })
}

// Descriptor is a service descriptor: semantic attributes plus provider.
type Descriptor struct {
	Semantic []string
	Provider string
}

func (m *Descriptor) appendTo(b []byte) []byte {
	b = appendStrings(b, 1, m.Semantic)
	return appendString(b, 2, m.Provider)
}

func (m *Descriptor) unmarshal(b []byte) error {
	*m = Descriptor{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			var s string
			if err := decodeString(f, &s); err != nil {
				return err
			}
			m.Semantic = append(m.Semantic, s)
		case 2:
			return decodeString(f, &m.Provider)
		}
		return nil
	})
}

// Entry is a stored descriptor with its QoS attributes.
type Entry struct {
	Record Descriptor
	QoS    []string
}

func (m *Entry) appendTo(b []byte) []byte {
	b = appendMessage(b, 1, &m.Record)
	return appendStrings(b, 2, m.QoS)
}

func (m *Entry) unmarshal(b []byte) error {
	*m = Entry{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			return decodeMessage(f, &m.Record)
		case 2:
			var s string
			if err := decodeString(f, &s); err != nil {
				return err
			}
			m.QoS = append(m.QoS, s)
		}
		return nil
	})
}

// NodeRef names a ring member.
type NodeRef struct {
	Name string
	Addr string
	ID   uint64
}

func (m *NodeRef) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.Name)
	b = appendString(b, 2, m.Addr)
	return appendUint(b, 3, m.ID)
}

func (m *NodeRef) unmarshal(b []byte) error {
	*m = NodeRef{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			return decodeString(f, &m.Name)
		case 2:
			return decodeString(f, &m.Addr)
		case 3:
			return decodeUint(f, &m.ID)
		}
		return nil
	})
}

// Span is a ring interval. Empty marks the empty span.
type Span struct {
	Begin uint64
	End   uint64
	Empty bool
}

func (m *Span) appendTo(b []byte) []byte {
	b = appendUint(b, 1, m.Begin)
	b = appendUint(b, 2, m.End)
	return appendBool(b, 3, m.Empty)
}

func (m *Span) unmarshal(b []byte) error {
	*m = Span{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			return decodeUint(f, &m.Begin)
		case 2:
			return decodeUint(f, &m.End)
		case 3:
			var v uint64
			if err := decodeUint(f, &v); err != nil {
				return err
			}
			m.Empty = v != 0
		}
		return nil
	})
}

type FindSuccessorRequest struct {
	ID uint64
}

func (m *FindSuccessorRequest) appendTo(b []byte) []byte { return appendUint(b, 1, m.ID) }

func (m *FindSuccessorRequest) unmarshal(b []byte) error {
	*m = FindSuccessorRequest{}
	return walk(b, func(f field) error {
		if f.num == 1 {
			return decodeUint(f, &m.ID)
		}
		return nil
	})
}

type FindSuccessorResponse struct {
	Node NodeRef
}

func (m *FindSuccessorResponse) appendTo(b []byte) []byte { return appendMessage(b, 1, &m.Node) }

func (m *FindSuccessorResponse) unmarshal(b []byte) error {
	*m = FindSuccessorResponse{}
	return walk(b, func(f field) error {
		if f.num == 1 {
			return decodeMessage(f, &m.Node)
		}
		return nil
	})
}

type InsertEntryRequest struct {
	Entry Entry
}

func (m *InsertEntryRequest) appendTo(b []byte) []byte { return appendMessage(b, 1, &m.Entry) }

func (m *InsertEntryRequest) unmarshal(b []byte) error {
	*m = InsertEntryRequest{}
	return walk(b, func(f field) error {
		if f.num == 1 {
			return decodeMessage(f, &m.Entry)
		}
		return nil
	})
}

type InsertReplicasRequest struct {
	Entries []Entry
}

func (m *InsertReplicasRequest) appendTo(b []byte) []byte { return appendEntries(b, 1, m.Entries) }

func (m *InsertReplicasRequest) unmarshal(b []byte) error {
	*m = InsertReplicasRequest{}
	return walk(b, func(f field) error {
		if f.num == 1 {
			return decodeEntry(f, &m.Entries)
		}
		return nil
	})
}

type RemoveEntryRequest struct {
	Record Descriptor
}

func (m *RemoveEntryRequest) appendTo(b []byte) []byte { return appendMessage(b, 1, &m.Record) }

func (m *RemoveEntryRequest) unmarshal(b []byte) error {
	*m = RemoveEntryRequest{}
	return walk(b, func(f field) error {
		if f.num == 1 {
			return decodeMessage(f, &m.Record)
		}
		return nil
	})
}

// RemoveReplicasRequest drops replicas on the receiver. With no Records it
// drops everything strictly between the receiver and Boundary.
type RemoveReplicasRequest struct {
	Boundary uint64
	Records  []Descriptor
}

func (m *RemoveReplicasRequest) appendTo(b []byte) []byte {
	b = appendUint(b, 1, m.Boundary)
	for i := range m.Records {
		b = appendMessage(b, 2, &m.Records[i])
	}
	return b
}

func (m *RemoveReplicasRequest) unmarshal(b []byte) error {
	*m = RemoveReplicasRequest{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			return decodeUint(f, &m.Boundary)
		case 2:
			var d Descriptor
			if err := decodeMessage(f, &d); err != nil {
				return err
			}
			m.Records = append(m.Records, d)
		}
		return nil
	})
}

type RetrieveRequest struct {
	Descriptor  Descriptor
	Constraints []string
	Required    int64
	Span        Span
}

func (m *RetrieveRequest) appendTo(b []byte) []byte {
	b = appendMessage(b, 1, &m.Descriptor)
	b = appendStrings(b, 2, m.Constraints)
	b = appendInt(b, 3, m.Required)
	return appendMessage(b, 4, &m.Span)
}

func (m *RetrieveRequest) unmarshal(b []byte) error {
	*m = RetrieveRequest{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			return decodeMessage(f, &m.Descriptor)
		case 2:
			var s string
			if err := decodeString(f, &s); err != nil {
				return err
			}
			m.Constraints = append(m.Constraints, s)
		case 3:
			return decodeInt(f, &m.Required)
		case 4:
			return decodeMessage(f, &m.Span)
		}
		return nil
	})
}

type RetrieveResponse struct {
	Entries []Entry
	Hops    int64
}

func (m *RetrieveResponse) appendTo(b []byte) []byte {
	b = appendEntries(b, 1, m.Entries)
	return appendInt(b, 2, m.Hops)
}

func (m *RetrieveResponse) unmarshal(b []byte) error {
	*m = RetrieveResponse{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			return decodeEntry(f, &m.Entries)
		case 2:
			return decodeInt(f, &m.Hops)
		}
		return nil
	})
}

type NotifyRequest struct {
	Candidate NodeRef
}

func (m *NotifyRequest) appendTo(b []byte) []byte { return appendMessage(b, 1, &m.Candidate) }

func (m *NotifyRequest) unmarshal(b []byte) error {
	*m = NotifyRequest{}
	return walk(b, func(f field) error {
		if f.num == 1 {
			return decodeMessage(f, &m.Candidate)
		}
		return nil
	})
}

// NotifyResponse lists the receiver's predecessor followed by its
// successors. Entries is only set by NotifyAndCopyEntries.
type NotifyResponse struct {
	Refs    []NodeRef
	Entries []Entry
}

func (m *NotifyResponse) appendTo(b []byte) []byte {
	for i := range m.Refs {
		b = appendMessage(b, 1, &m.Refs[i])
	}
	return appendEntries(b, 2, m.Entries)
}

func (m *NotifyResponse) unmarshal(b []byte) error {
	*m = NotifyResponse{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			var r NodeRef
			if err := decodeMessage(f, &r); err != nil {
				return err
			}
			m.Refs = append(m.Refs, r)
		case 2:
			return decodeEntry(f, &m.Entries)
		}
		return nil
	})
}

type LeaveRequest struct {
	Predecessor NodeRef
}

func (m *LeaveRequest) appendTo(b []byte) []byte { return appendMessage(b, 1, &m.Predecessor) }

func (m *LeaveRequest) unmarshal(b []byte) error {
	*m = LeaveRequest{}
	return walk(b, func(f field) error {
		if f.num == 1 {
			return decodeMessage(f, &m.Predecessor)
		}
		return nil
	})
}

func appendEntries(b []byte, num protowire.Number, entries []Entry) []byte {
	for i := range entries {
		b = appendMessage(b, num, &entries[i])
	}
	return b
}

func decodeEntry(f field, dst *[]Entry) error {
	var e Entry
	if err := decodeMessage(f, &e); err != nil {
		return err
	}
	*dst = append(*dst, e)
	return nil
}
