package dedup

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mnbf9rca/eventhub-to-timescale/errors"
)

// Backend names accepted by Config.Backend.
const (
	BackendKV    = "kv"
	BackendRedis = "redis"
	BackendSQL   = "sql"
)

// Config selects and configures a Store backend.
type Config struct {
	Backend string `json:"backend" schema:"type:enum,description:Marker store backend,enum:kv|redis|sql,default:kv"`
	Prefix  string `json:"prefix" schema:"type:string,description:Bucket or key prefix,default:dedup"`
	Timeout string `json:"timeout" schema:"type:string,description:Per-call timeout for the KV backend,default:5s"`

	RedisAddr     string `json:"redis_addr" schema:"type:string,description:Redis address (host:port)"`
	RedisPassword string `json:"redis_password" schema:"type:string,description:Redis password"`
	RedisDB       int    `json:"redis_db" schema:"type:int,description:Redis database number"`
	TTL           string `json:"ttl" schema:"type:string,description:Marker expiry for Redis (empty keeps forever)"`

	// DSN defaults to DEDUP_CONNECTION_STRING.
	DSN   string `json:"dsn" schema:"type:string,description:PostgreSQL DSN for the SQL backend"`
	Table string `json:"table" schema:"type:string,description:Marker table for the SQL backend,default:dedup_markers"`

	// CacheSize enables a local LRU of known markers. Ignored when TTL is set.
	CacheSize int `json:"cache_size" schema:"type:int,description:Local marker cache entries (0 disables),default:1024,min:0"`
}

// DefaultConfig returns the KV backend configuration.
func DefaultConfig() Config {
	return Config{Backend: BackendKV, Prefix: "dedup", Timeout: "5s", CacheSize: 1024}
}

// Validate checks the backend name and durations.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendKV, BackendRedis, BackendSQL:
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: unknown dedup backend %q", errors.ErrInvalidConfig, c.Backend),
			"dedup", "Validate", "check backend")
	}
	for _, d := range []string{c.Timeout, c.TTL} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "dedup", "Validate", "parse duration")
		}
	}
	if c.CacheSize < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: cache_size cannot be negative", errors.ErrInvalidConfig), "dedup", "Validate", "check cache")
	}
	if c.Backend == BackendRedis && c.RedisAddr == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: redis_addr", errors.ErrMissingConfig), "dedup", "Validate", "check redis")
	}
	return nil
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the configured Store, fronted by a CachedStore when
// CacheSize is positive and markers do not expire. The returned Closer
// releases backend connections; for the KV backend it is a no-op since the
// NATS connection is shared.
func Open(ctx context.Context, cfg Config, provider BucketProvider) (Store, io.Closer, error) {
	store, closer, err := openBackend(ctx, cfg, provider)
	if err != nil || cfg.CacheSize == 0 || cfg.TTL != "" {
		return store, closer, err
	}
	cached, err := NewCachedStore(store, cfg.CacheSize)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return cached, closer, nil
}

func openBackend(ctx context.Context, cfg Config, provider BucketProvider) (Store, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	switch cfg.Backend {
	case BackendRedis:
		client := NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		return NewRedisStore(client, cfg.Prefix, parseDuration(cfg.TTL)), client, nil

	case BackendSQL:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = os.Getenv("DEDUP_CONNECTION_STRING")
		}
		if dsn == "" {
			return nil, nil, errors.WrapFatal(fmt.Errorf("%w: dsn or DEDUP_CONNECTION_STRING", errors.ErrMissingConfig),
				"dedup", "Open", "resolve dsn")
		}
		db, err := OpenSQL(ctx, dsn)
		if err != nil {
			return nil, nil, errors.WrapTransient(err, "dedup", "Open", "connect sql store")
		}
		return NewSQLStore(db, cfg.Table), db, nil

	default:
		if provider == nil {
			return nil, nil, errors.WrapFatal(fmt.Errorf("%w: NATS client", errors.ErrMissingConfig),
				"dedup", "Open", "resolve kv provider")
		}
		return NewKVStore(provider, cfg.Prefix, parseDuration(cfg.Timeout)), nopCloser{}, nil
	}
}
