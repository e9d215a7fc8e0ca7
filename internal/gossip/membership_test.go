package gossip

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"

	"semchord/internal/node"
	"semchord/internal/ring"
	"semchord/internal/wire"
)

func newTestMembership(suspect, dead time.Duration) *Membership {
	return NewMembership("local", "127.0.0.1:50051", 1*time.Second, suspect, dead, nil)
}

func TestMembership_MergeRules(t *testing.T) {
	m := newTestMembership(3*time.Second, 10*time.Second)

	// Test: higher incarnation wins
	m.ApplyGossip([]*Member{
		{ID: "node1", Addr: "127.0.0.1:50052", Status: Alive, Incarnation: 5},
	})

	member := m.members["node1"]
	if member == nil {
		t.Fatal("Expected node1 to be added")
	}
	if member.Incarnation != 5 {
		t.Errorf("Expected incarnation 5, got %d", member.Incarnation)
	}

	// Test: lower incarnation ignored
	m.ApplyGossip([]*Member{
		{ID: "node1", Addr: "127.0.0.1:50052", Status: Suspect, Incarnation: 3},
	})
	if member.Incarnation != 5 {
		t.Errorf("Expected incarnation to remain 5, got %d", member.Incarnation)
	}
	if member.Status != Alive {
		t.Errorf("Expected status to remain Alive, got %v", member.Status)
	}

	// Test: same incarnation, prefer Alive
	m.members["node1"].Status = Suspect
	m.ApplyGossip([]*Member{
		{ID: "node1", Addr: "127.0.0.1:50052", Status: Alive, Incarnation: 5},
	})
	if member.Status != Alive {
		t.Errorf("Expected status to update to Alive, got %v", member.Status)
	}

	// Test: gossip about ourselves is ignored
	m.ApplyGossip([]*Member{{ID: "local", Addr: "127.0.0.1:50051", Status: Dead, Incarnation: 99}})
	if m.members["local"].Status != Alive {
		t.Errorf("Expected local member to stay Alive, got %v", m.members["local"].Status)
	}
}

func TestMembership_AliveNodesAndUnreachable(t *testing.T) {
	m := newTestMembership(3*time.Second, 10*time.Second)

	m.ApplyGossip([]*Member{
		{ID: "node1", Addr: "127.0.0.1:50052", Status: Alive, Incarnation: 1},
		{ID: "node2", Addr: "127.0.0.1:50053", Status: Suspect, Incarnation: 1},
		{ID: "node3", Addr: "127.0.0.1:50054", Status: Dead, Incarnation: 1},
	})

	alive := m.AliveNodes()
	if len(alive) != 2 { // local + node1
		t.Fatalf("Expected 2 alive nodes, got %d", len(alive))
	}
	if alive[0].Name != "local" || alive[1].Name != "node1" {
		t.Errorf("Unexpected alive nodes %v", alive)
	}

	unreachable := m.Unreachable()
	if len(unreachable) != 2 || unreachable[0] != "127.0.0.1:50053" || unreachable[1] != "127.0.0.1:50054" {
		t.Errorf("Unexpected unreachable addresses %v", unreachable)
	}
}

func TestMembership_StateTransitions(t *testing.T) {
	m := newTestMembership(100*time.Millisecond, 200*time.Millisecond)

	m.ApplyGossip([]*Member{
		{ID: "node1", Addr: "127.0.0.1:50052", Status: Alive, Incarnation: 1},
	})

	m.mu.Lock()
	m.members["node1"].Status = Suspect
	m.members["node1"].LastSeen = time.Now().Add(-150 * time.Millisecond) // Past suspect timeout
	m.mu.Unlock()

	m.checkTimeouts()

	m.mu.RLock()
	status := m.members["node1"].Status
	m.mu.RUnlock()
	if status != Dead {
		t.Errorf("Expected node1 to be Dead after timeout, got %v", status)
	}

	m.mu.Lock()
	m.members["node1"].LastSeen = time.Now().Add(-300 * time.Millisecond) // Past dead timeout
	m.mu.Unlock()

	m.checkTimeouts()

	m.mu.RLock()
	_, exists := m.members["node1"]
	m.mu.RUnlock()
	if exists {
		t.Error("Expected node1 to be forgotten after dead timeout")
	}
}

func TestMembership_FailedProbeNotifiesSubscriber(t *testing.T) {
	m := newTestMembership(3*time.Second, 10*time.Second)
	m.AddSeedMembers([]ring.NodeRef{{Name: "node1", Addr: "127.0.0.1:50052"}})

	got := make(chan []string, 4)
	m.SetOnMembershipChanged(func(unreachable []string) { got <- unreachable })

	m.probe(func(context.Context, string) error { return errors.New("connection refused") })

	deadline := time.After(2 * time.Second)
	for {
		select {
		case addrs := <-got:
			if len(addrs) == 1 && addrs[0] == "127.0.0.1:50052" {
				return
			}
		case <-deadline:
			t.Fatal("Expected subscriber to be told about 127.0.0.1:50052")
		}
	}
}

func TestMembership_AddSeedMembers(t *testing.T) {
	m := newTestMembership(3*time.Second, 10*time.Second)

	m.AddSeedMembers([]ring.NodeRef{
		{Name: "seed1", Addr: "127.0.0.1:50052"},
		{Name: "seed2", Addr: "127.0.0.1:50053"},
		{Name: "self-alias", Addr: "127.0.0.1:50051"},
	})

	m.mu.RLock()
	memberCount := len(m.members)
	seed1Exists := m.members["seed1"] != nil
	seed2Exists := m.members["seed2"] != nil
	m.mu.RUnlock()

	if memberCount != 3 { // local + 2 seeds
		t.Errorf("Expected 3 members, got %d", memberCount)
	}
	if !seed1Exists {
		t.Error("Expected seed1 to be added")
	}
	if !seed2Exists {
		t.Error("Expected seed2 to be added")
	}
}

func TestMembership_BootstrapPlaceholderRenamed(t *testing.T) {
	m := newTestMembership(3*time.Second, 10*time.Second)

	m.AddSeedMembers([]ring.NodeRef{{Addr: "127.0.0.1:50052"}})
	if _, ok := m.members["127.0.0.1:50052"]; !ok {
		t.Fatal("Expected bootstrap address to be tracked")
	}

	// Ring references carry the real name.
	m.AddSeedMembers([]ring.NodeRef{{Name: "node1", Addr: "127.0.0.1:50052"}, {Name: "node2", Addr: "127.0.0.1:50053"}})
	// Repeated references change nothing.
	m.AddSeedMembers([]ring.NodeRef{{Name: "node1", Addr: "127.0.0.1:50052"}, {Addr: "127.0.0.1:50053"}})

	ids := make([]string, 0)
	for _, member := range m.Snapshot() {
		ids = append(ids, member.ID)
	}
	if len(ids) != 3 || ids[0] != "local" || ids[1] != "node1" || ids[2] != "node2" {
		t.Errorf("Expected [local node1 node2], got %v", ids)
	}
}

func TestRemoteFuncs_ExchangeMembership(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	remote := NewMembership("remote", lis.Addr().String(), time.Second, 3*time.Second, 10*time.Second, nil)
	remote.ApplyGossip([]*Member{{ID: "node9", Addr: "127.0.0.1:50059", Status: Alive, Incarnation: 2}})

	srv := grpc.NewServer()
	wire.RegisterMembershipServer(srv, NewServer(remote, nil))
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	clients := node.NewClientManager()
	defer clients.Close()

	local := newTestMembership(3*time.Second, 10*time.Second)
	probe, gossip := RemoteFuncs(local, clients)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := probe(ctx, lis.Addr().String()); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if local.members["node9"] == nil || local.members["remote"] == nil {
		t.Errorf("Expected probe reply to be merged, got %v", local.Snapshot())
	}

	if err := gossip(ctx, lis.Addr().String(), local.Snapshot()); err != nil {
		t.Fatalf("gossip: %v", err)
	}
	if remote.members["local"] == nil {
		t.Error("Expected remote to learn about local")
	}

	c, err := clients.MembershipClient(lis.Addr().String())
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	resp, err := c.GetMembership(ctx)
	if err != nil {
		t.Fatalf("get membership: %v", err)
	}
	if resp.LocalNodeID != "remote" || len(resp.Members) != 3 {
		t.Errorf("Unexpected membership %+v", resp)
	}
}
