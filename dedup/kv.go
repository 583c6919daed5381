package dedup

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/mnbf9rca/eventhub-to-timescale/natsclient"
)

// BucketProvider creates JetStream KV buckets and wraps them.
// *natsclient.Client satisfies it.
type BucketProvider interface {
	CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error)
	NewKVStore(bucket jetstream.KeyValue, timeout time.Duration) *natsclient.KVStore
}

// KVStore keeps markers in JetStream key-value buckets, one bucket per
// namespace.
type KVStore struct {
	provider BucketProvider
	prefix   string
	timeout  time.Duration
	history  uint8

	mu      sync.Mutex
	buckets map[string]*natsclient.KVStore
}

// NewKVStore returns a store whose buckets are named "<prefix>_<namespace>".
func NewKVStore(provider BucketProvider, prefix string, timeout time.Duration) *KVStore {
	if prefix == "" {
		prefix = "dedup"
	}
	return &KVStore{
		provider: provider,
		prefix:   prefix,
		timeout:  timeout,
		history:  1,
		buckets:  make(map[string]*natsclient.KVStore),
	}
}

// Exists implements Store.
func (s *KVStore) Exists(ctx context.Context, namespace, key string) (bool, error) {
	kv, err := s.bucket(ctx, namespace)
	if err != nil {
		return false, err
	}
	_, err = kv.Get(ctx, EncodeKey(key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, natsclient.ErrKVKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

// PutIfAbsent implements Store.
func (s *KVStore) PutIfAbsent(ctx context.Context, namespace, key string) (bool, error) {
	kv, err := s.bucket(ctx, namespace)
	if err != nil {
		return false, err
	}
	stamp := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	_, err = kv.Create(ctx, EncodeKey(key), stamp)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, natsclient.ErrKVKeyExists):
		return false, nil
	default:
		return false, err
	}
}

func (s *KVStore) bucket(ctx context.Context, namespace string) (*natsclient.KVStore, error) {
	name := BucketName(s.prefix, namespace)

	s.mu.Lock()
	defer s.mu.Unlock()

	if kv, ok := s.buckets[name]; ok {
		return kv, nil
	}

	bucket, err := s.provider.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "processed version markers for " + namespace,
		History:     s.history,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, err
	}

	kv := s.provider.NewKVStore(bucket, s.timeout)
	s.buckets[name] = kv
	return kv, nil
}

// BucketName maps a namespace onto the characters JetStream allows in
// bucket names.
func BucketName(prefix, namespace string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('_')
	for _, r := range namespace {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// EncodeKey makes an arbitrary version marker safe as a KV key. Timestamps
// contain ':' which JetStream rejects.
func EncodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}
