package component

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats(t *testing.T) {
	var s Stats

	h := s.Health()
	assert.False(t, h.Healthy)
	assert.Zero(t, h.Uptime)

	s.MarkStarted()
	assert.True(t, s.Running())

	s.RecordMessage(100)
	s.RecordMessage(50)
	s.RecordError(fmt.Errorf("bad topic"))

	h = s.Health()
	assert.True(t, h.Healthy)
	assert.Equal(t, 1, h.ErrorCount)
	assert.Equal(t, "bad topic", h.LastError)

	flow := s.DataFlow()
	assert.InDelta(t, 0.5, flow.ErrorRate, 0.0001)
	assert.False(t, flow.LastActivity.IsZero())
	assert.Equal(t, int64(2), s.Messages())
	assert.Equal(t, int64(1), s.Errors())

	s.MarkStopped()
	assert.False(t, s.Health().Healthy)
	assert.Zero(t, s.DataFlow().MessagesPerSecond)
}

func TestDependencies(t *testing.T) {
	var deps Dependencies
	assert.NotNil(t, deps.GetLogger())
	assert.Nil(t, deps.Bus(), "nil client must not become a non-nil interface")
}
