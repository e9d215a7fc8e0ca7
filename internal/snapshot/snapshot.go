// Package snapshot periodically saves a node's entry store to Redis and
// republishes the saved entries when the node comes back.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"semchord/internal/logger"
	"semchord/internal/service"
)

const (
	// KeyPrefix is the prefix for snapshot keys.
	KeyPrefix = "semchord:snapshot:"
	// DefaultTTL bounds how long a snapshot outlives its node.
	DefaultTTL = 24 * time.Hour
)

// Key returns the Redis key for a node's snapshot.
func Key(nodeName string) string {
	return KeyPrefix + nodeName
}

// Client is the subset of *redis.Client the store uses.
type Client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Source yields the entries to save.
type Source interface {
	Snapshot() []service.Entry
}

// Inserter republishes entries into the ring.
type Inserter interface {
	Insert(ctx context.Context, e service.Entry) error
}

type entryJSON struct {
	Semantic []string `json:"semantic"`
	Provider string   `json:"provider"`
	QoS      []string `json:"qos,omitempty"`
}

type document struct {
	Node    string      `json:"node"`
	SavedAt time.Time   `json:"saved_at"`
	Entries []entryJSON `json:"entries"`
}

// Store handles Redis operations for snapshots.
type Store struct {
	client Client
	ttl    time.Duration
}

// NewStore creates a snapshot store. A non-positive ttl uses DefaultTTL.
func NewStore(client Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

// Save replaces the node's snapshot with entries.
func (s *Store) Save(ctx context.Context, nodeName string, entries []service.Entry) error {
	doc := document{Node: nodeName, SavedAt: time.Now().UTC(), Entries: make([]entryJSON, 0, len(entries))}
	for _, e := range entries {
		doc.Entries = append(doc.Entries, entryJSON{
			Semantic: e.Record.Semantic,
			Provider: e.Record.Provider,
			QoS:      e.QoS,
		})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, Key(nodeName), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load returns the node's saved entries. A missing snapshot yields none.
func (s *Store) Load(ctx context.Context, nodeName string) ([]service.Entry, error) {
	data, err := s.client.Get(ctx, Key(nodeName)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	out := make([]service.Entry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		out = append(out, service.Entry{
			Record: service.Descriptor{Semantic: e.Semantic, Provider: e.Provider},
			QoS:    e.QoS,
		})
	}
	return out, nil
}

// Delete drops the node's snapshot.
func (s *Store) Delete(ctx context.Context, nodeName string) error {
	if err := s.client.Del(ctx, Key(nodeName)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Restore inserts the node's saved entries through n. Entries are routed to
// whichever node owns them now. Invalid or failing entries are logged and
// skipped.
func (s *Store) Restore(ctx context.Context, nodeName string, n Inserter, log logger.Logger) (int, error) {
	entries, err := s.Load(ctx, nodeName)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, e := range entries {
		if err := n.Insert(ctx, e); err != nil {
			log.Warn("snapshot entry not restored", logger.Stringer("record", e.Record), logger.Error(err))
			continue
		}
		restored++
	}
	return restored, nil
}

// Run saves src every interval until ctx is done, then saves once more.
func (s *Store) Run(ctx context.Context, nodeName string, src Source, interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	save := func(ctx context.Context) {
		entries := src.Snapshot()
		if err := s.Save(ctx, nodeName, entries); err != nil {
			log.Warn("snapshot failed", logger.Error(err))
			return
		}
		log.Debug("snapshot saved", logger.Int("entries", len(entries)))
	}

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			save(final)
			cancel()
			return
		case <-ticker.C:
			save(ctx)
		}
	}
}

// Connect creates a Redis client and checks that the server answers.
func Connect(ctx context.Context, addr, password string, db int, log logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unavailable: %w", addr, err)
	}
	log.Info("connected to redis", logger.String("addr", addr))
	return client, nil
}
