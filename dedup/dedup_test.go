package dedup

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnbf9rca/eventhub-to-timescale/errors"
	"github.com/mnbf9rca/eventhub-to-timescale/pkg/retry"
)

// memoryStore is an in-process Store with injectable failures.
type memoryStore struct {
	mu      sync.Mutex
	keys    map[string]bool
	failFor int
	calls   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]bool{}}
}

func (m *memoryStore) fail() error {
	m.calls++
	if m.failFor > 0 {
		m.failFor--
		return stderrors.New("backend unavailable")
	}
	return nil
}

func (m *memoryStore) Exists(_ context.Context, ns, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return false, err
	}
	return m.keys[ns+"/"+key], nil
}

func (m *memoryStore) PutIfAbsent(_ context.Context, ns, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return false, err
	}
	if m.keys[ns+"/"+key] {
		return false, nil
	}
	m.keys[ns+"/"+key] = true
	return true, nil
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestGate_SeenThenMark(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(newMemoryStore(), WithRetry(fastRetry()))

	seen, err := gate.Seen(ctx, "VIN1", "2023-05-01T10:00:00Z")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, gate.Mark(ctx, "VIN1", "2023-05-01T10:00:00Z"))
	require.NoError(t, gate.Mark(ctx, "VIN1", "2023-05-01T10:00:00Z"), "second mark must succeed")

	seen, err = gate.Seen(ctx, "VIN1", "2023-05-01T10:00:00Z")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = gate.Seen(ctx, "VIN2", "2023-05-01T10:00:00Z")
	require.NoError(t, err)
	assert.False(t, seen, "namespaces are independent")
}

func TestGate_RetriesTransientFailures(t *testing.T) {
	store := newMemoryStore()
	store.failFor = 2
	gate := NewGate(store, WithRetry(fastRetry()))

	seen, err := gate.Seen(context.Background(), "VIN1", "v1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, 3, store.calls)
}

func TestGate_SurfacesBackendFailure(t *testing.T) {
	store := newMemoryStore()
	store.failFor = 10
	gate := NewGate(store, WithRetry(fastRetry()))

	_, err := gate.Seen(context.Background(), "VIN1", "v1")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	err = gate.Mark(context.Background(), "VIN1", "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Gate.Mark")
}

func TestGate_InvalidMarker(t *testing.T) {
	gate := NewGate(newMemoryStore())

	tests := []struct {
		name    string
		subject string
		version string
	}{
		{"empty subject", "", "v1"},
		{"empty version", "VIN1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gate.Seen(context.Background(), tt.subject, tt.version)
			require.ErrorIs(t, err, ErrInvalidMarker)
			assert.True(t, errors.IsInvalid(err))

			require.ErrorIs(t, gate.Mark(context.Background(), tt.subject, tt.version), ErrInvalidMarker)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"default", DefaultConfig(), nil},
		{"unknown backend", Config{Backend: "etcd"}, errors.ErrInvalidConfig},
		{"bad timeout", Config{Backend: BackendKV, Timeout: "soon"}, errors.ErrInvalidConfig},
		{"redis without addr", Config{Backend: BackendRedis}, errors.ErrMissingConfig},
		{"redis", Config{Backend: BackendRedis, RedisAddr: "localhost:6379", TTL: "720h"}, nil},
		{"sql", Config{Backend: BackendSQL}, nil},
		{"negative cache", Config{Backend: BackendKV, CacheSize: -1}, errors.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestOpen_KVRequiresProvider(t *testing.T) {
	_, _, err := Open(context.Background(), DefaultConfig(), nil)
	require.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestOpen_SQLRequiresDSN(t *testing.T) {
	t.Setenv("DEDUP_CONNECTION_STRING", "")
	_, _, err := Open(context.Background(), Config{Backend: BackendSQL}, nil)
	require.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestOpen_CachesUnlessMarkersExpire(t *testing.T) {
	cfg := Config{Backend: BackendRedis, RedisAddr: "localhost:6379", CacheSize: 8}

	store, closer, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closer.Close()
	assert.IsType(t, &CachedStore{}, store)

	cfg.TTL = "1h"
	store, closer2, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closer2.Close()
	assert.IsType(t, &RedisStore{}, store)
}

func TestCachedStore(t *testing.T) {
	backend := newMemoryStore()
	store, err := NewCachedStore(backend, 2)
	require.NoError(t, err)
	ctx := context.Background()

	found, err := store.Exists(ctx, "VIN1", "v1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, backend.calls, "misses reach the backend")

	added, err := store.PutIfAbsent(ctx, "VIN1", "v1")
	require.NoError(t, err)
	assert.True(t, added)

	for i := 0; i < 3; i++ {
		found, err = store.Exists(ctx, "VIN1", "v1")
		require.NoError(t, err)
		assert.True(t, found)
	}
	assert.Equal(t, 2, backend.calls, "hits are served locally")
	assert.Equal(t, int64(3), store.Stats().Hits())

	backend.failFor = 1
	_, err = store.Exists(ctx, "VIN2", "v1")
	assert.Error(t, err)

	_, err = NewCachedStore(backend, 0)
	assert.True(t, errors.IsInvalid(err))
}
