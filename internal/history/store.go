// ABOUTME: Session history persistence with in-memory and Redis backends
// ABOUTME: Histories are stored whole under the session id and replaced on Save

package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by NewStore.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// DefaultKeyPrefix namespaces Redis keys.
const DefaultKeyPrefix = "medassist:history:"

// DefaultTTL expires idle Redis histories.
const DefaultTTL = 24 * time.Hour

// Store persists conversation history per session id.
type Store interface {
	// Load returns the history for id, or nil when none exists.
	Load(ctx context.Context, id string) ([]Entry, error)
	Save(ctx context.Context, id string, entries []Entry) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Options selects and configures a Store.
type Options struct {
	Backend   string        `mapstructure:"backend" yaml:"backend"`
	RedisURL  string        `mapstructure:"redis_url" yaml:"redis_url"`
	KeyPrefix string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// NewStore builds the Store named by opts.Backend. An empty backend means
// memory.
func NewStore(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, errors.New("redis history backend requires a redis_url")
		}
		opt, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		return NewRedisStore(redis.NewClient(opt), opts.KeyPrefix, opts.TTL), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", opts.Backend)
	}
}

// MemoryStore keeps histories in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Entry)}
}

func (m *MemoryStore) Load(_ context.Context, id string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.sessions[id]), nil
}

func (m *MemoryStore) Save(_ context.Context, id string, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = slices.Clone(entries)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) Close() error { return nil }

// RedisStore keeps each history as a JSON string value with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps client. Empty prefix and zero ttl pick the defaults.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Load(ctx context.Context, id string) ([]Entry, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading history %s: %w", id, err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decoding history %s: %w", id, err)
	}
	return entries, nil
}

func (r *RedisStore) Save(ctx context.Context, id string, entries []Entry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding history %s: %w", id, err)
	}
	if err := r.client.Set(ctx, r.key(id), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("saving history %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("deleting history %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
