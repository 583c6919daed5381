package component

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks the counters behind Health and DataFlow. The zero value is
// ready to use.
type Stats struct {
	messages atomic.Int64
	bytes    atomic.Int64
	errors   atomic.Int64

	mu           sync.RWMutex
	running      bool
	startTime    time.Time
	lastActivity time.Time
	lastError    string
}

// MarkStarted records the start time and flips the running flag.
func (s *Stats) MarkStarted() {
	s.mu.Lock()
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()
}

// MarkStopped clears the running flag.
func (s *Stats) MarkStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Running reports whether MarkStarted was called without a later MarkStopped.
func (s *Stats) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// RecordMessage counts one inbound message of size bytes.
func (s *Stats) RecordMessage(size int) {
	s.messages.Add(1)
	s.bytes.Add(int64(size))
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// RecordError counts a failure and keeps its message for Health.
func (s *Stats) RecordError(err error) {
	s.errors.Add(1)
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

// Messages returns the number of inbound messages seen.
func (s *Stats) Messages() int64 { return s.messages.Load() }

// Errors returns the number of failures recorded.
func (s *Stats) Errors() int64 { return s.errors.Load() }

// Health reports the component healthy while it is running.
func (s *Stats) Health() HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var uptime time.Duration
	if s.running {
		uptime = time.Since(s.startTime)
	}
	return HealthStatus{
		Healthy:    s.running,
		LastCheck:  time.Now(),
		ErrorCount: int(s.errors.Load()),
		LastError:  s.lastError,
		Uptime:     uptime,
	}
}

// DataFlow returns averages since start.
func (s *Stats) DataFlow() FlowMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.messages.Load()
	flow := FlowMetrics{LastActivity: s.lastActivity}
	if messages > 0 {
		flow.ErrorRate = float64(s.errors.Load()) / float64(messages)
	}
	if s.running {
		if elapsed := time.Since(s.startTime).Seconds(); elapsed > 0 {
			flow.MessagesPerSecond = float64(messages) / elapsed
			flow.BytesPerSecond = float64(s.bytes.Load()) / elapsed
		}
	}
	return flow
}
