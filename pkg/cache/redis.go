package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisSetScript stores an entry unless a fresher one is present.
// KEYS[1] = entry key
// ARGV[1] = encoded entry
// ARGV[2] = incoming expiry (unix milliseconds)
// ARGV[3] = ttl (milliseconds)
//
// Redis drops the key when its PEXPIRE elapses, so an existing "exp" field
// always belongs to a live entry.
var redisSetScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "exp")
if current and tonumber(current) >= tonumber(ARGV[2]) then
    return 0
end
redis.call("HSET", KEYS[1], "exp", ARGV[2], "data", ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string

	// Password is the optional Redis password
	Password string

	// DB is the Redis database number
	DB int

	// Prefix is prepended to every key
	Prefix string
}

// RedisStore is a Store shared across orchestrator replicas.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a store backed by Redis.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "conductor:cache:"
	}
	return &RedisStore{client: rdb, prefix: prefix, now: time.Now}
}

// Ping verifies the connection to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrBackend, err)
	}
	return nil
}

// Get returns the entry for key if present and not expired.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	data, err := s.client.HGet(ctx, s.prefix+key, "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrBackend, key, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("%w: decode %s: %v", ErrBackend, key, err)
	}
	if entry.Expired(s.now()) {
		return nil, false, nil
	}
	return &entry, true, nil
}

// Set stores the entry atomically under the don't-clobber-fresher rule.
func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry) (bool, error) {
	ttl := entry.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return false, nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("%w: encode %s: %v", ErrBackend, key, err)
	}

	res, err := redisSetScript.Run(ctx, s.client, []string{s.prefix + key},
		data, entry.ExpiresAt.UnixMilli(), ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: set %s: %v", ErrBackend, key, err)
	}
	return res == 1, nil
}

// Len counts keys under the store prefix.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 500).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: scan: %v", ErrBackend, err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
