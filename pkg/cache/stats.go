package cache

import "sync/atomic"

// Statistics counts cache activity. Safe for concurrent use.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	size      atomic.Int64
}

// NewStatistics returns zeroed statistics
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) Hit()               { s.hits.Add(1) }
func (s *Statistics) Miss()              { s.misses.Add(1) }
func (s *Statistics) Eviction()          { s.evictions.Add(1) }
func (s *Statistics) UpdateSize(n int)   { s.size.Store(int64(n)) }
func (s *Statistics) Hits() int64        { return s.hits.Load() }
func (s *Statistics) Misses() int64      { return s.misses.Load() }
func (s *Statistics) Evictions() int64   { return s.evictions.Load() }
func (s *Statistics) CurrentSize() int64 { return s.size.Load() }

// HitRatio returns hits over lookups, or 0 before the first lookup
func (s *Statistics) HitRatio() float64 {
	hits, misses := s.Hits(), s.Misses()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}
