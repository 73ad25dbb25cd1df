package edgecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is a stored response.
type Entry struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

// Storage holds named caches of entries. Get reports false on a miss.
type Storage interface {
	Get(ctx context.Context, cache, key string) (*Entry, bool, error)
	Put(ctx context.Context, cache, key string, e *Entry) error
	Caches(ctx context.Context) ([]string, error)
	DeleteCache(ctx context.Context, cache string) error
}

// MemoryStorage keeps caches in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	caches map[string]map[string]*Entry
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{caches: make(map[string]map[string]*Entry)}
}

func (m *MemoryStorage) Get(_ context.Context, cache, key string) (*Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.caches[cache][key]
	return e, ok, nil
}

func (m *MemoryStorage) Put(_ context.Context, cache, key string, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.caches[cache]
	if !ok {
		c = make(map[string]*Entry)
		m.caches[cache] = c
	}
	c[key] = e
	return nil
}

func (m *MemoryStorage) Caches(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.caches)), nil
}

func (m *MemoryStorage) DeleteCache(_ context.Context, cache string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.caches, cache)
	return nil
}

// RedisStorage keeps each cache in a hash under prefix+name, and the set
// of cache names under prefix+"names".
type RedisStorage struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStorage creates a RedisStorage. An empty prefix defaults to "edgecache:".
func NewRedisStorage(rdb *redis.Client, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = "edgecache:"
	}
	return &RedisStorage{rdb: rdb, prefix: prefix}
}

func (s *RedisStorage) namesKey() string { return s.prefix + "names" }

func (s *RedisStorage) cacheKey(cache string) string { return s.prefix + "cache:" + cache }

func (s *RedisStorage) Get(ctx context.Context, cache, key string) (*Entry, bool, error) {
	data, err := s.rdb.HGet(ctx, s.cacheKey(cache), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis hget %s: %w", cache, err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("decode entry %s: %w", key, err)
	}
	return &e, true, nil
}

func (s *RedisStorage) Put(ctx context.Context, cache, key string, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", key, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, s.namesKey(), cache)
	pipe.HSet(ctx, s.cacheKey(cache), key, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put %s: %w", cache, err)
	}
	return nil
}

func (s *RedisStorage) Caches(ctx context.Context) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

func (s *RedisStorage) DeleteCache(ctx context.Context, cache string) error {
	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, s.namesKey(), cache)
	pipe.Del(ctx, s.cacheKey(cache))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete %s: %w", cache, err)
	}
	return nil
}
