package selection

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"botdesk/internal/repository"
)

// Store persists a tenant's selected bot across sessions.
type Store interface {
	// Get returns the value under key. Missing keys and read failures both
	// report ok=false: a session without a persisted selection is normal.
	Get(ctx context.Context, key string) (value string, ok bool)
	// Set durably writes value under key before returning.
	Set(ctx context.Context, key, value string) error
}

// NewStore builds the store named by kind ("redis", "db" or "memory"). Redis
// falls back to the database store when no client is available.
func NewStore(kind string, client *redis.Client, kv *repository.KeyValueRepository, logger *zap.Logger) Store {
	switch kind {
	case "memory":
		return NewMemoryStore()
	case "db":
		return NewDBStore(kv)
	default:
		if client == nil {
			logger.Warn("Redis unavailable for bot selection store, using database")
			return NewDBStore(kv)
		}
		return NewRedisStore(client)
	}
}

// MemoryStore keeps selections in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// RedisStore keeps selections as plain Redis strings without expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "botdesk:"}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

// DBStore keeps selections in the key_values table.
type DBStore struct {
	kv *repository.KeyValueRepository
}

func NewDBStore(kv *repository.KeyValueRepository) *DBStore {
	return &DBStore{kv: kv}
}

func (d *DBStore) Get(ctx context.Context, key string) (string, bool) {
	v, err := d.kv.Get(ctx, key)
	if err != nil {
		return "", false
	}
	return v, true
}

func (d *DBStore) Set(ctx context.Context, key, value string) error {
	return d.kv.Set(ctx, key, value)
}
