package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{"telemetry.raw.>", "telemetry.raw.glow", true},
		{"telemetry.raw.>", "telemetry.raw", false},
		{"telemetry.*.glow", "telemetry.raw.glow", true},
		{"telemetry.records", "telemetry.records", true},
		{"telemetry.records", "telemetry.records.x", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchSubject(tt.pattern, tt.subject))
		})
	}
}

func TestMockNATSClient(t *testing.T) {
	ctx := context.Background()
	m := NewMockNATSClient()

	var got []string
	sub, err := m.Subscribe(ctx, "a.>", func(_ context.Context, data []byte) {
		got = append(got, string(data))
	})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Subscriptions("a.>"))

	require.NoError(t, m.Publish(ctx, "a.b", []byte("1")))
	assert.Equal(t, 1, m.Deliver(ctx, "a.c", []byte("2")))
	assert.Equal(t, []string{"1", "2"}, got)
	assert.Len(t, m.Published("a.b"), 1)
	assert.Empty(t, m.Published("a.c"))

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
	assert.Zero(t, m.Subscriptions("a.>"))
	assert.Zero(t, m.Deliver(ctx, "a.b", []byte("3")))
	assert.Equal(t, []string{"1", "2"}, got)

	m.FailPublish("x", fmt.Errorf("down"))
	assert.Error(t, m.Publish(ctx, "x", nil))

	m.FailSubscribe(fmt.Errorf("closed"))
	_, err = m.Subscribe(ctx, "y", func(context.Context, []byte) {})
	assert.Error(t, err)
}

func TestFixtures(t *testing.T) {
	var env map[string]any
	require.NoError(t, json.Unmarshal(Envelope("glow/x/electricitymeter", 1, GlowElectricityPayload), &env))
	assert.IsType(t, "", env["payload"])

	var batch []json.RawMessage
	require.NoError(t, json.Unmarshal(Batch(ScalarEnvelope("homie/a/b/state", 1, `"on"`)), &batch))
	assert.Len(t, batch, 1)

	var state map[string]any
	assert.NoError(t, json.Unmarshal([]byte(VehicleState), &state))
}
