package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the ledger keys in Redis.
const DefaultRedisPrefix = "bookshelf:ledger"

// putScript keeps the larger timestamp and appends unseen keys to the order
// set, scored by a counter shared by every writer.
var putScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if not current or tonumber(ARGV[2]) > tonumber(current) then
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
end
if not redis.call('ZSCORE', KEYS[2], ARGV[1]) then
	redis.call('ZADD', KEYS[2], redis.call('INCR', KEYS[3]), ARGV[1])
end
return 1
`)

// RedisStore shares one ledger between processes through Redis.
//
// Timestamps live in a hash (<prefix>:timestamps) and the key order in a
// sorted set (<prefix>:order) scored by an insertion counter (<prefix>:seq).
// Put runs as a Lua script; other writes touching both structures run inside
// MULTI/EXEC.
type RedisStore struct {
	redis         *redis.Client
	timestampsKey string
	orderKey      string
	seqKey        string
}

// NewRedisStore creates a Redis-backed store using DefaultRedisPrefix.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return NewRedisStoreWithPrefix(redisClient, DefaultRedisPrefix)
}

// NewRedisStoreWithPrefix creates a Redis-backed store under a custom prefix.
func NewRedisStoreWithPrefix(redisClient *redis.Client, prefix string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:         redisClient,
		timestampsKey: prefix + ":timestamps",
		orderKey:      prefix + ":order",
		seqKey:        prefix + ":seq",
	}
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, fetchedAt int64) error {
	keys := []string{s.timestampsKey, s.orderKey, s.seqKey}
	if err := putScript.Run(ctx, s.redis, keys, key, fetchedAt).Err(); err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, bool, error) {
	ts, err := s.redis.HGet(ctx, s.timestampsKey, key).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis hget: %w", err)
	}
	return ts, true, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.timestampsKey, key)
		pipe.ZRem(ctx, s.orderKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.timestampsKey, s.orderKey, s.seqKey).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Entries implements Store.
func (s *RedisStore) Entries(ctx context.Context) ([]Entry, error) {
	var order *redis.StringSliceCmd
	var timestamps *redis.MapStringStringCmd

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		order = pipe.ZRange(ctx, s.orderKey, 0, -1)
		timestamps = pipe.HGetAll(ctx, s.timestampsKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis entries: %w", err)
	}

	values := timestamps.Val()
	entries := make([]Entry, 0, len(values))
	for _, key := range order.Val() {
		raw, ok := values[key]
		if !ok {
			continue
		}
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp for %s: %w", key, err)
		}
		entries = append(entries, Entry{Key: key, LastFetchedAt: ts})
	}
	return entries, nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
