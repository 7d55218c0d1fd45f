// Package redisstate implements the strongly-consistent key/value store
// and atomic script execution shared by every worker: job control state,
// the inflight gauge, the malicious-event index, and the DLQ list.
package redisstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps a go-redis client and caches registered Lua script handles
// per process so repeated calls bypass re-registration, matching the
// cache-after-first-registration requirement of spec.md §4.A.
type Store struct {
	rdb     *redis.Client
	mu      sync.Mutex
	scripts map[string]*redis.Script
}

// New constructs a Store from a redis:// URL.
func New(redisURL string) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("op=redisstate.New: %w", err)
	}
	return &Store{
		rdb:     redis.NewClient(opt),
		scripts: make(map[string]*redis.Script),
	}, nil
}

// NewFromClient wraps an already-constructed client, used by tests against miniredis.
func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, scripts: make(map[string]*redis.Script)}
}

// Close releases the underlying Redis connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Get returns a string value, or "" if the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("op=redisstate.Get: %w", err)
	}
	return v, nil
}

// Set sets a string value with an optional TTL (0 disables expiry).
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("op=redisstate.Set: %w", err)
	}
	return nil
}

// HSet sets one or more fields on a hash.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if err := s.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("op=redisstate.HSet: %w", err)
	}
	return nil
}

// HMGet reads a set of hash fields, returning "" for any that are absent.
func (s *Store) HMGet(ctx context.Context, key string, fields ...string) ([]string, error) {
	vals, err := s.rdb.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("op=redisstate.HMGet: %w", err)
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		if v == nil {
			out[i] = ""
			continue
		}
		if s, ok := v.(string); ok {
			out[i] = s
		}
	}
	return out, nil
}

// HSetNX sets a single hash field only if it is not already present.
func (s *Store) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	ok, err := s.rdb.HSetNX(ctx, key, field, value).Result()
	if err != nil {
		return false, fmt.Errorf("op=redisstate.HSetNX: %w", err)
	}
	return ok, nil
}

// Incr atomically increments an integer key and returns the new value.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	v, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("op=redisstate.Incr: %w", err)
	}
	return v, nil
}

// Decr atomically decrements an integer key and returns the new value.
func (s *Store) Decr(ctx context.Context, key string) (int64, error) {
	v, err := s.rdb.Decr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("op=redisstate.Decr: %w", err)
	}
	return v, nil
}

// Expire refreshes a key's TTL.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("op=redisstate.Expire: %w", err)
	}
	return nil
}

// RegisterScript registers (or returns the cached handle for) a Lua script.
// The adapter caches the handle after first registration per process, per
// spec.md §4.A, keyed by the script's source text.
func (s *Store) RegisterScript(source string) *redis.Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.scripts[source]; ok {
		return sc
	}
	sc := redis.NewScript(source)
	s.scripts[source] = sc
	return sc
}

// RunScript executes a registered script against the store's client.
func (s *Store) RunScript(ctx context.Context, sc *redis.Script, keys []string, args ...any) (any, error) {
	res, err := sc.Run(ctx, s.rdb, keys, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("op=redisstate.RunScript: %w", err)
	}
	return res, nil
}

// Publish publishes a message on a pub/sub channel, used by the notifier.
func (s *Store) Publish(ctx context.Context, channel string, message string) error {
	if err := s.rdb.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("op=redisstate.Publish: %w", err)
	}
	return nil
}

// Subscribe opens a subscription to a pub/sub channel.
func (s *Store) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, channel)
}

// RPush appends a value onto a list, used by the DLQ writer.
func (s *Store) RPush(ctx context.Context, key string, value string) error {
	if err := s.rdb.RPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("op=redisstate.RPush: %w", err)
	}
	return nil
}

// LRange reads a range of a list, used by DLQ introspection.
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("op=redisstate.LRange: %w", err)
	}
	return vals, nil
}

// LPush/BLPop-style queue primitives live in the taskqueue adapter; Store
// only exposes the generic primitives the task queue and job-control
// layers are both built from.
