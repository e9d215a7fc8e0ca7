package wire

// MemberStatus mirrors gossip.MemberStatus on the wire.
type MemberStatus uint64

const (
	MemberAlive MemberStatus = iota
	MemberSuspect
	MemberDead
)

type Member struct {
	ID             string
	Addr           string
	Status         MemberStatus
	Incarnation    uint64
	LastSeenUnixMs uint64
}

func (m *Member) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.Addr)
	b = appendUint(b, 3, uint64(m.Status))
	b = appendUint(b, 4, m.Incarnation)
	return appendUint(b, 5, m.LastSeenUnixMs)
}

func (m *Member) unmarshal(b []byte) error {
	*m = Member{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			return decodeString(f, &m.ID)
		case 2:
			return decodeString(f, &m.Addr)
		case 3:
			var v uint64
			if err := decodeUint(f, &v); err != nil {
				return err
			}
			m.Status = MemberStatus(v)
		case 4:
			return decodeUint(f, &m.Incarnation)
		case 5:
			return decodeUint(f, &m.LastSeenUnixMs)
		}
		return nil
	})
}

// memberList is the shape shared by every membership message: an id,
// a millisecond timestamp and a member list.
type memberList struct {
	id      *string
	ts      *uint64
	members *[]Member
}

func (l memberList) appendTo(b []byte) []byte {
	if l.id != nil {
		b = appendString(b, 1, *l.id)
	}
	if l.ts != nil {
		b = appendUint(b, 2, *l.ts)
	}
	for i := range *l.members {
		b = appendMessage(b, 3, &(*l.members)[i])
	}
	return b
}

func (l memberList) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		switch {
		case f.num == 1 && l.id != nil:
			return decodeString(f, l.id)
		case f.num == 2 && l.ts != nil:
			return decodeUint(f, l.ts)
		case f.num == 3:
			var mem Member
			if err := decodeMessage(f, &mem); err != nil {
				return err
			}
			*l.members = append(*l.members, mem)
		}
		return nil
	})
}

type PingRequest struct {
	FromID      string
	TimestampMs uint64
	Members     []Member
}

func (m *PingRequest) fields() memberList {
	return memberList{id: &m.FromID, ts: &m.TimestampMs, members: &m.Members}
}
func (m *PingRequest) appendTo(b []byte) []byte { return m.fields().appendTo(b) }
func (m *PingRequest) unmarshal(b []byte) error {
	*m = PingRequest{}
	return m.fields().unmarshal(b)
}

type PingResponse struct {
	ResponderID string
	TimestampMs uint64
	Members     []Member
}

func (m *PingResponse) fields() memberList {
	return memberList{id: &m.ResponderID, ts: &m.TimestampMs, members: &m.Members}
}
func (m *PingResponse) appendTo(b []byte) []byte { return m.fields().appendTo(b) }
func (m *PingResponse) unmarshal(b []byte) error {
	*m = PingResponse{}
	return m.fields().unmarshal(b)
}

type GossipRequest struct {
	FromID  string
	Members []Member
}

func (m *GossipRequest) fields() memberList {
	return memberList{id: &m.FromID, members: &m.Members}
}
func (m *GossipRequest) appendTo(b []byte) []byte { return m.fields().appendTo(b) }
func (m *GossipRequest) unmarshal(b []byte) error {
	*m = GossipRequest{}
	return m.fields().unmarshal(b)
}

type GossipResponse struct {
	ResponderID string
	Members     []Member
}

func (m *GossipResponse) fields() memberList {
	return memberList{id: &m.ResponderID, members: &m.Members}
}
func (m *GossipResponse) appendTo(b []byte) []byte { return m.fields().appendTo(b) }
func (m *GossipResponse) unmarshal(b []byte) error {
	*m = GossipResponse{}
	return m.fields().unmarshal(b)
}

type GetMembershipResponse struct {
	LocalNodeID string
	Members     []Member
}

func (m *GetMembershipResponse) fields() memberList {
	return memberList{id: &m.LocalNodeID, members: &m.Members}
}
func (m *GetMembershipResponse) appendTo(b []byte) []byte { return m.fields().appendTo(b) }
func (m *GetMembershipResponse) unmarshal(b []byte) error {
	*m = GetMembershipResponse{}
	return m.fields().unmarshal(b)
}
