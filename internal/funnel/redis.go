package funnel

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per source under prefix+source and a set of
// known sources under prefix+"sources".
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix defaults to "funnel:".
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "funnel:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) sourcesKey() string { return s.prefix + "sources" }

func (s *RedisStore) sourceKey(source string) string { return s.prefix + "src:" + source }

func (s *RedisStore) Incr(ctx context.Context, source string, event Event) error {
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, s.sourcesKey(), source)
	pipe.HIncrBy(ctx, s.sourceKey(source), string(event), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis incr %s/%s: %w", source, event, err)
	}
	return nil
}

func (s *RedisStore) All(ctx context.Context) (map[string]Counters, error) {
	sources, err := s.rdb.SMembers(ctx, s.sourcesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}

	pipe := s.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(sources))
	for _, src := range sources {
		cmds[src] = pipe.HGetAll(ctx, s.sourceKey(src))
	}
	if len(cmds) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("redis hgetall: %w", err)
		}
	}

	out := make(map[string]Counters, len(sources))
	for src, cmd := range cmds {
		c := make(Counters)
		for field, val := range cmd.Val() {
			e, ok := ParseEvent(field)
			if !ok {
				continue
			}
			n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse counter %s/%s: %w", src, field, err)
			}
			c[e] = n
		}
		out[src] = c
	}
	return out, nil
}
