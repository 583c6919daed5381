package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client the store uses.
type RedisClient interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisStore keeps markers as plain Redis keys "<prefix>:<namespace>:<key>".
// Namespaces need no setup.
type RedisStore struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store over client. A zero ttl keeps markers forever.
func NewRedisStore(client RedisClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "dedup"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisClient dials addr. The connection is lazy; the first command
// surfaces any error.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (s *RedisStore) key(namespace, key string) string {
	return s.prefix + ":" + namespace + ":" + key
}

// Exists implements Store.
func (s *RedisStore) Exists(ctx context.Context, namespace, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(namespace, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PutIfAbsent implements Store.
func (s *RedisStore) PutIfAbsent(ctx context.Context, namespace, key string) (bool, error) {
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	return s.client.SetNX(ctx, s.key(namespace, key), stamp, s.ttl).Result()
}
