package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"semchord/internal/ident"
)

func TestParsePeers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Peer
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  []Peer{},
		},
		{
			name:  "single peer",
			input: "n1=127.0.0.1:7001",
			want: []Peer{
				{ID: "n1", Addr: "127.0.0.1:7001"},
			},
		},
		{
			name:  "multiple peers",
			input: "n1=127.0.0.1:7001,n2=127.0.0.1:7002,n3=127.0.0.1:7003",
			want: []Peer{
				{ID: "n1", Addr: "127.0.0.1:7001"},
				{ID: "n2", Addr: "127.0.0.1:7002"},
				{ID: "n3", Addr: "127.0.0.1:7003"},
			},
		},
		{
			name:  "with spaces and trailing comma",
			input: "n1 = 127.0.0.1:7001 , n2 = 127.0.0.1:7002,",
			want: []Peer{
				{ID: "n1", Addr: "127.0.0.1:7001"},
				{ID: "n2", Addr: "127.0.0.1:7002"},
			},
		},
		{
			name:    "invalid format - no equals",
			input:   "n1:127.0.0.1:7001",
			wantErr: true,
		},
		{
			name:    "invalid format - empty ID",
			input:   "=127.0.0.1:7001",
			wantErr: true,
		},
		{
			name:    "invalid format - empty addr",
			input:   "n1=",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeers(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParsePeers() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if len(got) != len(tt.want) {
					t.Errorf("ParsePeers() length = %d, want %d", len(got), len(tt.want))
					return
				}
				for i := range got {
					if got[i] != tt.want[i] {
						t.Errorf("ParsePeers()[%d] = %v, want %v", i, got[i], tt.want[i])
					}
				}
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SpaceConfig() != ident.DefaultConfig() {
		t.Errorf("SpaceConfig() = %+v, want defaults", cfg.SpaceConfig())
	}
	if cfg.MaxSuccessors != 3 || cfg.MaxForwards != 32 || cfg.MaxLookupHops != 256 {
		t.Errorf("unexpected ring defaults: successors=%d forwards=%d lookup hops=%d", cfg.MaxSuccessors, cfg.MaxForwards, cfg.MaxLookupHops)
	}
	if cfg.Advertised() != cfg.ListenAddr {
		t.Errorf("Advertised() = %s, want listen address %s", cfg.Advertised(), cfg.ListenAddr)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SEMCHORD_NODE_ID", "n7")
	t.Setenv("SEMCHORD_LISTEN_ADDR", "0.0.0.0:7007")
	t.Setenv("SEMCHORD_ADVERTISE_ADDR", "node7.internal:7007")
	t.Setenv("SEMCHORD_PEERS", "n1=node1.internal:7001")
	t.Setenv("SEMCHORD_STABILIZE_INTERVAL", "250ms")
	t.Setenv("SEMCHORD_SUCCESSORS", "5")
	t.Setenv("SEMCHORD_PRETTY_LOG", "true")
	t.Setenv("SEMCHORD_WORKERS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.NodeID != "n7" || cfg.Advertised() != "node7.internal:7007" {
		t.Errorf("unexpected identity %s/%s", cfg.NodeID, cfg.Advertised())
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0].Addr != "node1.internal:7001" {
		t.Errorf("unexpected peers %v", cfg.Peers)
	}
	if cfg.StabilizeInterval != 250*time.Millisecond {
		t.Errorf("StabilizeInterval = %v", cfg.StabilizeInterval)
	}
	if cfg.MaxSuccessors != 5 || !cfg.PrettyLog {
		t.Errorf("unexpected successors=%d pretty=%v", cfg.MaxSuccessors, cfg.PrettyLog)
	}
	if cfg.Workers != 4 {
		t.Errorf("invalid integer should fall back to default, got %d", cfg.Workers)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_InvalidPeers(t *testing.T) {
	t.Setenv("SEMCHORD_PEERS", "n1")
	if _, err := Load(); err == nil {
		t.Error("expected error for malformed peers")
	}
}

func TestLoad_ZeroIntervalsFailValidation(t *testing.T) {
	t.Setenv("SEMCHORD_NODE_ID", "n1")
	t.Setenv("SEMCHORD_SNAPSHOT_INTERVAL", "0s")
	t.Setenv("SEMCHORD_PROBE_INTERVAL", "1ns")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	err = cfg.Validate()
	if err == nil {
		t.Fatal("Validate() accepted zero snapshot and 1ns probe intervals")
	}
	for _, want := range []string{"snapshot interval", "probe interval"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		cfg.NodeID = "n1"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing node id", mutate: func(c *Config) { c.NodeID = "" }},
		{name: "no successors", mutate: func(c *Config) { c.MaxSuccessors = 0 }},
		{name: "unknown matcher", mutate: func(c *Config) { c.Matcher = "fuzzy" }},
		{name: "too wide", mutate: func(c *Config) { c.SemanticBits = 16 }, want: ident.ErrInvalidConfig},
		{name: "bootstrap is self", mutate: func(c *Config) { c.Bootstrap = c.ListenAddr }},
		{name: "no lookup hops", mutate: func(c *Config) { c.MaxLookupHops = 0 }},
		{name: "zero probe interval", mutate: func(c *Config) { c.ProbeInterval = 0 }},
		{name: "probe interval too short to halve", mutate: func(c *Config) { c.ProbeInterval = time.Nanosecond }},
		{name: "negative suspect timeout", mutate: func(c *Config) { c.SuspectTimeout = -time.Second }},
		{name: "zero snapshot interval", mutate: func(c *Config) { c.SnapshotInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.name == "valid" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestConfig_BuildRingNodes(t *testing.T) {
	cfg := &Config{
		NodeID:     "n1",
		ListenAddr: "127.0.0.1:7001",
		Peers: []Peer{
			{ID: "n1", Addr: "127.0.0.1:7001"},
			{ID: "n2", Addr: "127.0.0.1:7002"},
			{ID: "n3", Addr: "127.0.0.1:7003"},
		},
	}

	nodes := cfg.BuildRingNodes()
	if len(nodes) != 3 {
		t.Fatalf("Expected 3 nodes, got %d", len(nodes))
	}
	if nodes[0].Name != "n1" || nodes[0].Addr != "127.0.0.1:7001" {
		t.Errorf("Self node should come first, got %v", nodes[0])
	}
}
