package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"sifi-swap/pkg/types"
)

// DefaultTTL is how long a cached token list stays valid
const DefaultTTL = time.Hour

// Cache persists token lists per source and chain
type Cache interface {
	Get(ctx context.Context, source string, chainID uint64) ([]types.Token, bool, error)
	Set(ctx context.Context, source string, chainID uint64, tokens []types.Token) error
}

func cacheKey(source string, chainID uint64) string {
	return fmt.Sprintf("sifi-swap:tokens:%s:%d", source, chainID)
}

type memoryEntry struct {
	tokens  []types.Token
	expires time.Time
}

// MemoryCache keeps token lists in process memory
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryCache creates an in-memory cache
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryCache) Get(ctx context.Context, source string, chainID uint64) ([]types.Token, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[cacheKey(source, chainID)]
	if !ok || m.now().After(entry.expires) {
		return nil, false, nil
	}
	return entry.tokens, true, nil
}

func (m *MemoryCache) Set(ctx context.Context, source string, chainID uint64, tokens []types.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[cacheKey(source, chainID)] = memoryEntry{tokens: tokens, expires: m.now().Add(m.ttl)}
	return nil
}

// RedisConfig describes the redis connection of a RedisCache
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache shares token lists between runs through redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to redis and verifies the connection
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (r *RedisCache) Get(ctx context.Context, source string, chainID uint64) ([]types.Token, bool, error) {
	data, err := r.client.Get(ctx, cacheKey(source, chainID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read token cache: %w", err)
	}

	var tokens []types.Token
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, false, fmt.Errorf("failed to decode token cache: %w", err)
	}
	return tokens, true, nil
}

func (r *RedisCache) Set(ctx context.Context, source string, chainID uint64, tokens []types.Token) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to encode token cache: %w", err)
	}
	if err := r.client.Set(ctx, cacheKey(source, chainID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write token cache: %w", err)
	}
	return nil
}

// Close releases the redis connection
func (r *RedisCache) Close() error {
	return r.client.Close()
}
