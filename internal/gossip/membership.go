package gossip

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"semchord/internal/logger"
	"semchord/internal/ring"
	"semchord/internal/wire"
)

// MemberStatus represents the state of a ring member.
type MemberStatus int

const (
	Alive MemberStatus = iota
	Suspect
	Dead
)

// String returns the string representation of MemberStatus.
func (s MemberStatus) String() string {
	switch s {
	case Alive:
		return "ALIVE"
	case Suspect:
		return "SUSPECT"
	case Dead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// ToWire converts MemberStatus to its wire value.
func (s MemberStatus) ToWire() wire.MemberStatus {
	switch s {
	case Suspect:
		return wire.MemberSuspect
	case Dead:
		return wire.MemberDead
	default:
		return wire.MemberAlive
	}
}

// FromWire converts a wire status. Unknown values read as Alive.
func FromWire(s wire.MemberStatus) MemberStatus {
	switch s {
	case wire.MemberSuspect:
		return Suspect
	case wire.MemberDead:
		return Dead
	default:
		return Alive
	}
}

// Member represents a ring member. ID is the node name.
type Member struct {
	ID          string
	Addr        string
	Status      MemberStatus
	Incarnation uint64
	LastSeen    time.Time
}

// ProbeFunc checks that the member at addr is reachable.
type ProbeFunc func(ctx context.Context, addr string) error

// GossipFunc pushes members to the node at addr.
type GossipFunc func(ctx context.Context, addr string, members []*Member) error

// Membership tracks ring members with gossip-based failure detection. It
// does not change the ring itself; subscribers decide what to do with
// members that stop answering.
type Membership struct {
	mu          sync.RWMutex
	localID     string
	localAddr   string
	members     map[string]*Member // id -> Member
	incarnation map[string]uint64  // id -> incarnation (for local tracking)
	log         logger.Logger

	probeInterval  time.Duration
	suspectTimeout time.Duration
	deadTimeout    time.Duration

	onMembershipChanged func(unreachable []string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMembership creates a new membership manager.
func NewMembership(localID, localAddr string, probeInterval, suspectTimeout, deadTimeout time.Duration, log logger.Logger) *Membership {
	if probeInterval <= 0 {
		probeInterval = 1 * time.Second
	}
	if suspectTimeout <= 0 {
		suspectTimeout = 3 * time.Second
	}
	if deadTimeout <= 0 {
		deadTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Membership{
		localID:        localID,
		localAddr:      localAddr,
		members:        make(map[string]*Member),
		incarnation:    make(map[string]uint64),
		log:            log.With(logger.String("component", "gossip")),
		probeInterval:  probeInterval,
		suspectTimeout: suspectTimeout,
		deadTimeout:    deadTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}

	m.members[localID] = &Member{
		ID:          localID,
		Addr:        localAddr,
		Status:      Alive,
		Incarnation: 1,
		LastSeen:    time.Now(),
	}
	m.incarnation[localID] = 1

	return m
}

// LocalID returns the id of the local member.
func (m *Membership) LocalID() string { return m.localID }

// SetOnMembershipChanged sets a callback invoked with the addresses of every
// suspect or dead member whenever membership changes.
func (m *Membership) SetOnMembershipChanged(callback func(unreachable []string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMembershipChanged = callback
}

// Start starts the probe, gossip and timeout loops.
func (m *Membership) Start(probeFn ProbeFunc, gossipFn GossipFunc) {
	m.wg.Add(3)

	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.probeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.probe(probeFn)
			}
		}
	}()

	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.probeInterval * 2) // Gossip less frequently
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.gossip(gossipFn)
			}
		}
	}()

	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.probeInterval / 2)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.checkTimeouts()
			}
		}
	}()
}

// Stop stops the membership protocol.
func (m *Membership) Stop() {
	m.cancel()
	m.wg.Wait()
}

// probe checks a random alive peer.
func (m *Membership) probe(probeFn ProbeFunc) {
	m.mu.RLock()
	candidates := make([]*Member, 0)
	for _, member := range m.members {
		if member.Status == Alive && member.ID != m.localID {
			candidates = append(candidates, member)
		}
	}
	m.mu.RUnlock()

	if len(candidates) == 0 {
		return
	}
	target := candidates[rand.Intn(len(candidates))]

	ctx, cancel := context.WithTimeout(m.ctx, m.probeInterval)
	defer cancel()

	err := probeFn(ctx, target.Addr)
	m.recordProbe(target.ID, err)
}

func (m *Membership) recordProbe(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	member, exists := m.members[id]
	if !exists {
		return
	}
	if err == nil {
		member.LastSeen = time.Now()
		if member.Status != Alive {
			member.Status = Alive
			m.notifyMembershipChanged()
		}
		return
	}
	if member.Status == Alive {
		m.incarnation[id]++
		member.Status = Suspect
		member.Incarnation = m.incarnation[id]
		member.LastSeen = time.Now()
		m.log.Info("member suspect",
			logger.String("member", id),
			logger.String("addr", member.Addr),
			logger.Error(err))
		m.notifyMembershipChanged()
	}
}

// gossip pushes the full member list to a random peer.
func (m *Membership) gossip(gossipFn GossipFunc) {
	snapshot := m.Snapshot()

	peers := make([]*Member, 0, len(snapshot))
	for _, member := range snapshot {
		if member.ID != m.localID && member.Status != Dead {
			peers = append(peers, member)
		}
	}
	if len(peers) == 0 {
		return
	}
	target := peers[rand.Intn(len(peers))]

	ctx, cancel := context.WithTimeout(m.ctx, m.probeInterval)
	defer cancel()

	if err := gossipFn(ctx, target.Addr, snapshot); err != nil {
		m.log.Debug("gossip failed", logger.String("addr", target.Addr), logger.Error(err))
	}
}

// checkTimeouts promotes suspects to dead and forgets long-dead members.
func (m *Membership) checkTimeouts() {
	now := time.Now()
	changed := false

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, member := range m.members {
		if id == m.localID {
			continue
		}

		elapsed := now.Sub(member.LastSeen)
		switch {
		case member.Status == Suspect && elapsed > m.suspectTimeout:
			m.incarnation[id]++
			member.Status = Dead
			member.Incarnation = m.incarnation[id]
			member.LastSeen = now
			m.log.Info("member dead", logger.String("member", id), logger.String("addr", member.Addr))
			changed = true
		case member.Status == Dead && elapsed > m.deadTimeout:
			delete(m.members, id)
			delete(m.incarnation, id)
			m.log.Debug("member forgotten", logger.String("member", id))
		}
	}

	if changed {
		m.notifyMembershipChanged()
	}
}

// ApplyGossip merges received membership information.
func (m *Membership) ApplyGossip(remoteMembers []*Member) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	for _, remote := range remoteMembers {
		if remote.ID == m.localID {
			continue
		}

		local, exists := m.members[remote.ID]
		if !exists {
			if remote.ID != remote.Addr {
				m.dropPlaceholderLocked(remote.Addr)
			}
			m.members[remote.ID] = &Member{
				ID:          remote.ID,
				Addr:        remote.Addr,
				Status:      remote.Status,
				Incarnation: remote.Incarnation,
				LastSeen:    time.Now(),
			}
			m.incarnation[remote.ID] = remote.Incarnation
			changed = true
			m.log.Info("discovered member",
				logger.String("member", remote.ID),
				logger.String("addr", remote.Addr),
				logger.Stringer("status", remote.Status))
			continue
		}

		// Higher incarnation wins.
		if remote.Incarnation > local.Incarnation {
			local.Status = remote.Status
			local.Incarnation = remote.Incarnation
			local.LastSeen = time.Now()
			m.incarnation[remote.ID] = remote.Incarnation
			changed = true
			m.log.Debug("member updated",
				logger.String("member", remote.ID),
				logger.Uint64("incarnation", remote.Incarnation),
				logger.Stringer("status", remote.Status))
		} else if remote.Incarnation == local.Incarnation && shouldUpdateStatus(local.Status, remote.Status) {
			local.Status = remote.Status
			local.LastSeen = time.Now()
			changed = true
		}
	}

	if changed {
		m.notifyMembershipChanged()
	}
}

// shouldUpdateStatus returns true if remote status should replace local status
// when incarnations are equal. Prefers: Alive > Suspect > Dead
func shouldUpdateStatus(local, remote MemberStatus) bool {
	if remote == Alive && local != Alive {
		return true
	}
	if remote == Suspect && local == Dead {
		return true
	}
	return false
}

// MarkAlive marks a member as alive (called on successful ping).
func (m *Membership) MarkAlive(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	member, exists := m.members[id]
	if !exists {
		return
	}
	member.LastSeen = time.Now()
	if member.Status != Alive {
		member.Status = Alive
		m.log.Info("member alive", logger.String("member", id))
		m.notifyMembershipChanged()
	}
}

// Snapshot returns a copy of all members ordered by id.
func (m *Membership) Snapshot() []*Member {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make([]*Member, 0, len(m.members))
	for _, member := range m.members {
		cp := *member
		snapshot = append(snapshot, &cp)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return snapshot
}

// AliveNodes returns the alive members as ring references. Identifiers are
// left zero; callers hash the address with their own space.
func (m *Membership) AliveNodes() []ring.NodeRef {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nodes := make([]ring.NodeRef, 0)
	for _, member := range m.members {
		if member.Status == Alive {
			nodes = append(nodes, ring.NodeRef{Name: member.ID, Addr: member.Addr})
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return nodes
}

// Unreachable returns the addresses of suspect and dead members.
func (m *Membership) Unreachable() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unreachableLocked()
}

func (m *Membership) unreachableLocked() []string {
	out := make([]string, 0)
	for _, member := range m.members {
		if member.Status != Alive {
			out = append(out, member.Addr)
		}
	}
	sort.Strings(out)
	return out
}

// AddSeedMembers adds members that are not known yet, matched by name and
// by address. A member known only by its address, such as a bootstrap
// node, is renamed once a reference carrying its name arrives.
func (m *Membership) AddSeedMembers(seeds []ring.NodeRef) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	for _, seed := range seeds {
		if seed.Name == "" {
			seed.Name = seed.Addr
		}
		if seed.Name == m.localID || seed.Addr == m.localAddr {
			continue
		}
		if _, exists := m.members[seed.Name]; exists {
			continue
		}
		if id, ok := m.idForAddrLocked(seed.Addr); ok {
			if id != seed.Addr {
				continue
			}
			m.dropPlaceholderLocked(seed.Addr)
		}
		m.members[seed.Name] = &Member{
			ID:          seed.Name,
			Addr:        seed.Addr,
			Status:      Alive, // Assume alive initially
			Incarnation: 1,
			LastSeen:    time.Now(),
		}
		m.incarnation[seed.Name] = 1
		changed = true
		m.log.Debug("seed member added", logger.String("member", seed.Name), logger.String("addr", seed.Addr))
	}
	if changed {
		m.notifyMembershipChanged()
	}
}

func (m *Membership) idForAddrLocked(addr string) (string, bool) {
	for id, member := range m.members {
		if member.Addr == addr {
			return id, true
		}
	}
	return "", false
}

// dropPlaceholderLocked forgets a member that is keyed by its own address.
func (m *Membership) dropPlaceholderLocked(addr string) {
	if member, ok := m.members[addr]; ok && member.ID == addr {
		delete(m.members, addr)
		delete(m.incarnation, addr)
	}
}

// notifyMembershipChanged invokes the callback if set. Must be called with
// the lock held.
func (m *Membership) notifyMembershipChanged() {
	if m.onMembershipChanged != nil {
		unreachable := m.unreachableLocked()
		go m.onMembershipChanged(unreachable) // Async to avoid blocking
	}
}
