package dedup

import (
	"context"

	"github.com/mnbf9rca/eventhub-to-timescale/pkg/cache"
)

// CachedStore answers Exists from a local LRU for keys it has already seen
// present. Only positive answers are cached, so a miss always reaches the
// backend. It must not front a store whose keys expire.
type CachedStore struct {
	next Store
	lru  *cache.LRU[struct{}]
}

// NewCachedStore wraps next with an LRU of size entries.
func NewCachedStore(next Store, size int) (*CachedStore, error) {
	lru, err := cache.NewLRU[struct{}](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{next: next, lru: lru}, nil
}

func cacheKey(namespace, key string) string {
	return namespace + "\x00" + key
}

// Exists implements Store.
func (s *CachedStore) Exists(ctx context.Context, namespace, key string) (bool, error) {
	if _, ok := s.lru.Get(cacheKey(namespace, key)); ok {
		return true, nil
	}
	found, err := s.next.Exists(ctx, namespace, key)
	if err != nil || !found {
		return found, err
	}
	_, _ = s.lru.Set(cacheKey(namespace, key), struct{}{})
	return true, nil
}

// PutIfAbsent implements Store.
func (s *CachedStore) PutIfAbsent(ctx context.Context, namespace, key string) (bool, error) {
	added, err := s.next.PutIfAbsent(ctx, namespace, key)
	if err != nil {
		return false, err
	}
	_, _ = s.lru.Set(cacheKey(namespace, key), struct{}{})
	return added, nil
}

// Stats exposes the cache statistics.
func (s *CachedStore) Stats() *cache.Statistics {
	return s.lru.Stats()
}
