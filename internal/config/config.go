package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"semchord/internal/ident"
	"semchord/internal/ring"
	"semchord/internal/service"
)

// Peer represents a peer node in the ring.
type Peer struct {
	ID   string
	Addr string
}

// Config holds the node configuration.
type Config struct {
	NodeID        string
	ListenAddr    string // gRPC bind address
	AdvertiseAddr string // address peers dial; the ring identifier is derived from it
	HTTPAddr      string // operator API, empty = disabled
	Peers         []Peer
	Bootstrap     string // address of a ring member to join through
	SeedFile      string // YAML entries inserted after start, optional

	LogLevel        string // "debug" | "info" | "warn" | "error"
	PrettyLog       bool   // true => zap dev (color), false => zap prod (JSON)
	ShutdownTimeout time.Duration

	// Ring geometry
	SemanticBits        int
	ExpectedNetworkSize int
	MaxProviders        int

	// Ring maintenance
	MaxSuccessors      int
	MaxForwards        int
	MaxLookupHops      int
	StabilizeInterval  time.Duration
	ReplicationTimeout time.Duration
	Workers            int
	QueueSize          int
	Matcher            string // "subset" | "exact" | "any"

	// Failure detection
	ProbeInterval  time.Duration
	SuspectTimeout time.Duration
	DeadTimeout    time.Duration

	// Redis snapshots, empty address = disabled
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	SnapshotInterval time.Duration
}

// Load reads the configuration from SEMCHORD_* environment variables.
func Load() (*Config, error) {
	peers, err := ParsePeers(getenv("SEMCHORD_PEERS", ""))
	if err != nil {
		return nil, err
	}
	def := ident.DefaultConfig()

	cfg := &Config{
		NodeID:        getenv("SEMCHORD_NODE_ID", ""),
		ListenAddr:    getenv("SEMCHORD_LISTEN_ADDR", "127.0.0.1:7000"),
		AdvertiseAddr: getenv("SEMCHORD_ADVERTISE_ADDR", ""),
		HTTPAddr:      getenv("SEMCHORD_HTTP_ADDR", ""),
		Peers:         peers,
		Bootstrap:     getenv("SEMCHORD_BOOTSTRAP", ""),
		SeedFile:      getenv("SEMCHORD_SEED_FILE", ""),

		LogLevel:        getenv("SEMCHORD_LOG_LEVEL", "info"),
		PrettyLog:       mustBool("SEMCHORD_PRETTY_LOG", false),
		ShutdownTimeout: mustDuration("SEMCHORD_SHUTDOWN_TIMEOUT", 5*time.Second),

		SemanticBits:        getenvInt("SEMCHORD_SEMANTIC_BITS", def.SemanticBits),
		ExpectedNetworkSize: getenvInt("SEMCHORD_NETWORK_SIZE", def.ExpectedNetworkSize),
		MaxProviders:        getenvInt("SEMCHORD_MAX_PROVIDERS", def.MaxProviders),

		MaxSuccessors:      getenvInt("SEMCHORD_SUCCESSORS", 3),
		MaxForwards:        getenvInt("SEMCHORD_MAX_FORWARDS", 32),
		MaxLookupHops:      getenvInt("SEMCHORD_MAX_LOOKUP_HOPS", 256),
		StabilizeInterval:  mustDuration("SEMCHORD_STABILIZE_INTERVAL", time.Second),
		ReplicationTimeout: mustDuration("SEMCHORD_REPLICATION_TIMEOUT", 2*time.Second),
		Workers:            getenvInt("SEMCHORD_WORKERS", 4),
		QueueSize:          getenvInt("SEMCHORD_QUEUE_SIZE", 256),
		Matcher:            getenv("SEMCHORD_QOS_MATCHER", "subset"),

		ProbeInterval:  mustDuration("SEMCHORD_PROBE_INTERVAL", time.Second),
		SuspectTimeout: mustDuration("SEMCHORD_SUSPECT_TIMEOUT", 3*time.Second),
		DeadTimeout:    mustDuration("SEMCHORD_DEAD_TIMEOUT", 10*time.Second),

		RedisAddr:        getenv("SEMCHORD_REDIS_ADDR", ""),
		RedisPassword:    getenv("SEMCHORD_REDIS_PASSWORD", ""),
		RedisDB:          getenvInt("SEMCHORD_REDIS_DB", 0),
		SnapshotInterval: mustDuration("SEMCHORD_SNAPSHOT_INTERVAL", 30*time.Second),
	}
	return cfg, nil
}

// Advertised returns the address peers dial.
func (c *Config) Advertised() string {
	if c.AdvertiseAddr != "" {
		return c.AdvertiseAddr
	}
	return c.ListenAddr
}

// Validate rejects settings the node cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.NodeID == "" {
		errs = append(errs, errors.New("node id is required"))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.MaxSuccessors < 1 {
		errs = append(errs, fmt.Errorf("successor list length must be positive, got %d", c.MaxSuccessors))
	}
	if c.MaxForwards < 1 {
		errs = append(errs, fmt.Errorf("forward limit must be positive, got %d", c.MaxForwards))
	}
	if c.MaxLookupHops < 1 {
		errs = append(errs, fmt.Errorf("lookup hop limit must be positive, got %d", c.MaxLookupHops))
	}
	if c.StabilizeInterval <= 0 {
		errs = append(errs, errors.New("stabilize interval must be positive"))
	}
	// The failure detector checks timeouts every half probe interval.
	if c.ProbeInterval < 2*time.Nanosecond {
		errs = append(errs, fmt.Errorf("probe interval must be at least 2ns, got %s", c.ProbeInterval))
	}
	if c.SuspectTimeout <= 0 || c.DeadTimeout <= 0 {
		errs = append(errs, errors.New("suspect and dead timeouts must be positive"))
	}
	if c.SnapshotInterval <= 0 {
		errs = append(errs, fmt.Errorf("snapshot interval must be positive, got %s", c.SnapshotInterval))
	}
	if _, err := c.QoSMatcher(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ident.NewSpace(c.SpaceConfig()); err != nil {
		errs = append(errs, err)
	}
	if c.Bootstrap != "" && c.Bootstrap == c.Advertised() {
		errs = append(errs, fmt.Errorf("bootstrap %s is this node", c.Bootstrap))
	}
	return errors.Join(errs...)
}

// SpaceConfig returns the ring geometry.
func (c *Config) SpaceConfig() ident.Config {
	return ident.Config{
		SemanticBits:        c.SemanticBits,
		ExpectedNetworkSize: c.ExpectedNetworkSize,
		MaxProviders:        c.MaxProviders,
	}
}

// QoSMatcher resolves the configured matcher name.
func (c *Config) QoSMatcher() (service.Matcher, error) {
	switch c.Matcher {
	case "", "subset":
		return service.SubsetMatcher, nil
	case "exact":
		return service.ExactMatcher, nil
	case "any":
		return service.AnyMatcher, nil
	default:
		return nil, fmt.Errorf("unknown QoS matcher %q", c.Matcher)
	}
}

// ParsePeers parses a comma-separated list of peers in the format:
// "id1=addr1,id2=addr2,id3=addr3"
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id=addr)", part)
		}

		id := strings.TrimSpace(kv[0])
		addr := strings.TrimSpace(kv[1])

		if id == "" || addr == "" {
			return nil, fmt.Errorf("peer ID and address cannot be empty: %s", part)
		}

		peers = append(peers, Peer{
			ID:   id,
			Addr: addr,
		})
	}

	return peers, nil
}

// BuildRingNodes converts config peers + self into ring references.
// Self comes first. Identifiers are left zero.
func (c *Config) BuildRingNodes() []ring.NodeRef {
	nodes := make([]ring.NodeRef, 0, len(c.Peers)+1)
	nodes = append(nodes, ring.NodeRef{Name: c.NodeID, Addr: c.Advertised()})

	for _, peer := range c.Peers {
		// Skip self if it appears in peers list
		if peer.ID != c.NodeID && peer.Addr != c.Advertised() {
			nodes = append(nodes, ring.NodeRef{Name: peer.ID, Addr: peer.Addr})
		}
	}
	return nodes
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
