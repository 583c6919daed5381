package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnbf9rca/eventhub-to-timescale/component"
	"github.com/mnbf9rca/eventhub-to-timescale/errors"
	fixtures "github.com/mnbf9rca/eventhub-to-timescale/testutil"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestOutput(t *testing.T, extra map[string]any) (*Output, *fixtures.MockNATSClient, *fakeClock) {
	t.Helper()
	cfg := map[string]any{"directory": t.TempDir(), "flush_interval": "1h"}
	for k, v := range extra {
		cfg[k] = v
	}
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	comp, err := NewOutput(raw, component.Dependencies{})
	require.NoError(t, err)
	f := comp.(*Output)
	bus := fixtures.NewMockNATSClient()
	clock := &fakeClock{t: time.Date(2023, 6, 1, 23, 59, 0, 0, time.UTC)}
	f.bus = bus
	f.now = clock.Now
	require.NoError(t, f.Initialize())
	return f, bus, clock
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no subject", func(c *Config) { c.InputSubject = "" }},
		{"no directory", func(c *Config) { c.Directory = "" }},
		{"prefix with separator", func(c *Config) { c.FilePrefix = "../escape" }},
		{"zero buffer", func(c *Config) { c.BufferSize = 0 }},
		{"zero interval", func(c *Config) { c.FlushInterval = 0 }},
	}

	base := DefaultConfig()
	require.NoError(t, base.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.True(t, errors.IsInvalid(cfg.Validate()))
		})
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"array of objects", `[{"a": 1}, {"b": 2}]`, []string{`{"a":1}`, `{"b":2}`}},
		{"array of strings", `["{\"a\": 1}"]`, []string{`{"a":1}`}},
		{"single object", `{"a": 1}`, []string{`{"a":1}`}},
		{"not a batch", "plain\ntext", []string{"plain text"}},
		{"blank", "  ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := splitLines([]byte(tt.input))
			got := make([]string, 0, len(lines))
			for _, l := range lines {
				got = append(got, string(l))
			}
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutput_WritesAndRotates(t *testing.T) {
	f, bus, clock := newTestOutput(t, map[string]any{"buffer_size": 2})
	ctx := context.Background()
	require.NoError(t, f.Start(ctx))

	day1 := f.Path(clock.Now())
	assert.Equal(t, "monitor-20230601.jsonl", filepath.Base(day1))

	bus.Deliver(ctx, "telemetry.monitor", []byte(`[{"measurement_of": "range"}, {"measurement_of": "mileage"}]`))
	assert.Equal(t, []string{`{"measurement_of":"range"}`, `{"measurement_of":"mileage"}`}, readLines(t, day1))

	clock.Set(time.Date(2023, 6, 2, 0, 1, 0, 0, time.UTC))
	bus.Deliver(ctx, "telemetry.monitor", []byte(`[{"measurement_of": "coordinates"}]`))
	require.NoError(t, f.Stop(time.Second))

	day2 := f.Path(clock.Now())
	assert.NotEqual(t, day1, day2)
	assert.Equal(t, []string{`{"measurement_of":"coordinates"}`}, readLines(t, day2))
	assert.Len(t, readLines(t, day1), 2)
	assert.Equal(t, 0, f.Health().ErrorCount)
}

func TestOutput_AppendsAcrossRestarts(t *testing.T) {
	f, bus, clock := newTestOutput(t, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, f.Start(ctx))
		bus.Deliver(ctx, "telemetry.monitor", []byte(`{"n": 1}`))
		require.NoError(t, f.Stop(time.Second))
	}
	assert.Len(t, readLines(t, f.Path(clock.Now())), 2, "one line per record after a restart")
	assert.Zero(t, bus.Subscriptions("telemetry.monitor"))

	f.handleMessage(ctx, []byte(`{"n": 2}`))
	require.NoError(t, f.Start(ctx))
	require.NoError(t, f.Stop(time.Second))
	assert.Len(t, readLines(t, f.Path(clock.Now())), 2, "lines delivered while stopped are dropped")
}

func TestOutput_Lifecycle(t *testing.T) {
	comp, err := NewOutput(json.RawMessage(`{"directory": "`+t.TempDir()+`"}`), component.Dependencies{})
	require.NoError(t, err)
	f := comp.(*Output)
	assert.Error(t, f.Start(context.Background()), "start without NATS must fail")
	assert.False(t, f.Health().Healthy)

	f, bus, _ := newTestOutput(t, nil)
	require.NoError(t, f.Start(context.Background()))
	assert.Equal(t, 1, bus.Subscriptions("telemetry.monitor"))
	assert.ErrorIs(t, f.Start(context.Background()), errors.ErrAlreadyStarted)
	require.NoError(t, f.Stop(time.Second))
	assert.NoError(t, f.Stop(time.Second))

	assert.True(t, f.OutputPorts()[0].Config.IsExclusive())
	assert.Equal(t, "file:"+f.config.Directory, f.OutputPorts()[0].Config.ResourceID())

	_, err = NewOutput(json.RawMessage(`{"buffer_size": -1}`), component.Dependencies{})
	assert.True(t, errors.IsInvalid(err))
}

func TestRegister(t *testing.T) {
	r := component.NewRegistry()
	require.NoError(t, Register(r))
	assert.Equal(t, "output", r.ListAvailable()[componentName].Type)
}
