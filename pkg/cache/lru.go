package cache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/mnbf9rca/eventhub-to-timescale/errors"
)

type lruEntry[V any] struct {
	key   string
	value V
}

// LRU evicts the least recently used entry once more than maxSize are held.
type LRU[V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
	stats   *Statistics
}

// NewLRU returns an empty cache holding at most maxSize entries.
func NewLRU[V any](maxSize int) (*LRU[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: max size %d", errors.ErrInvalidConfig, maxSize),
			"cache", "NewLRU", "check size")
	}
	return &LRU[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		stats:   NewStatistics(),
	}, nil
}

// Get returns the value for key and marks it recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		c.stats.Miss()
		var zero V
		return zero, false
	}
	c.order.MoveToFront(element)
	c.stats.Hit()
	return element.Value.(*lruEntry[V]).value, true
}

// Set stores value under key. It reports whether the key is new.
func (c *LRU[V]) Set(key string, value V) (bool, error) {
	if key == "" {
		return false, errors.WrapInvalid(errors.ErrInvalidData, "cache", "Set", "key cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		element.Value.(*lruEntry[V]).value = value
		c.order.MoveToFront(element)
		return false, nil
	}

	c.items[key] = c.order.PushFront(&lruEntry[V]{key: key, value: value})
	if len(c.items) > c.maxSize {
		oldest := c.order.Back()
		delete(c.items, oldest.Value.(*lruEntry[V]).key)
		c.order.Remove(oldest)
		c.stats.Eviction()
	}
	c.stats.UpdateSize(len(c.items))
	return true, nil
}

// Delete removes key. It reports whether the key was present.
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return false
	}
	delete(c.items, key)
	c.order.Remove(element)
	c.stats.UpdateSize(len(c.items))
	return true
}

// Len returns the number of entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns the live statistics.
func (c *LRU[V]) Stats() *Statistics {
	return c.stats
}
