package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnbf9rca/eventhub-to-timescale/errors"
)

func TestNewLRU(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := NewLRU[int](size)
		assert.True(t, errors.IsInvalid(err), size)
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewLRU[int](2)
	require.NoError(t, err)

	created, err := c.Set("a", 1)
	require.NoError(t, err)
	assert.True(t, created)
	_, _ = c.Set("b", 2)

	_, ok := c.Get("a")
	require.True(t, ok)
	_, _ = c.Set("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently used")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Evictions())
	assert.Equal(t, int64(2), stats.Hits())
	assert.Equal(t, int64(1), stats.Misses())
	assert.Equal(t, int64(2), stats.CurrentSize())
	assert.InDelta(t, 2.0/3.0, stats.HitRatio(), 0.001)
}

func TestLRU_SetAndDelete(t *testing.T) {
	c, err := NewLRU[string](4)
	require.NoError(t, err)

	_, err = c.Set("", "x")
	assert.True(t, errors.IsInvalid(err))

	_, _ = c.Set("k", "v1")
	created, err := c.Set("k", "v2")
	require.NoError(t, err)
	assert.False(t, created)
	v, _ := c.Get("k")
	assert.Equal(t, "v2", v)

	assert.True(t, c.Delete("k"))
	assert.False(t, c.Delete("k"))
	assert.Zero(t, c.Len())
	assert.Zero(t, NewStatistics().HitRatio())
}

func TestLRU_Concurrent(t *testing.T) {
	c, err := NewLRU[int](64)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("%d-%d", g, i%100)
				_, _ = c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 64)
}
