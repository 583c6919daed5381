package vehicle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnbf9rca/eventhub-to-timescale/component"
	"github.com/mnbf9rca/eventhub-to-timescale/errors"
	"github.com/mnbf9rca/eventhub-to-timescale/metric"
	fixtures "github.com/mnbf9rca/eventhub-to-timescale/testutil"
)

type fakeFetcher struct {
	mu     sync.Mutex
	states []json.RawMessage
	err    error
	calls  int
}

func (f *fakeFetcher) FetchLatestState(_ context.Context, vins []string) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.states, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestPoller(t *testing.T, raw string) (*Poller, *fixtures.MockNATSClient, *fakeFetcher, *metric.MetricsRegistry) {
	t.Helper()
	registry := metric.NewMetricsRegistry()
	comp, err := NewInput(json.RawMessage(raw), component.Dependencies{MetricsRegistry: registry})
	require.NoError(t, err)
	p := comp.(*Poller)
	bus := fixtures.NewMockNATSClient()
	fetcher := &fakeFetcher{states: []json.RawMessage{json.RawMessage(fixtures.VehicleState)}}
	p.bus = bus
	p.fetcher = fetcher
	require.NoError(t, p.Initialize())
	return p, bus, fetcher, registry
}

func TestNewInput(t *testing.T) {
	t.Setenv("VEHICLE_VINS", " VIN1, ,VIN2 ")
	t.Setenv("VEHICLE_API_URL", "https://api.example.com")
	t.Setenv("VEHICLE_API_TOKEN", "tok")

	comp, err := NewInput(nil, component.Dependencies{})
	require.NoError(t, err)
	p := comp.(*Poller)
	assert.Equal(t, []string{"VIN1", "VIN2"}, p.config.VINs)
	assert.Equal(t, "tok", p.config.Token)
	require.NoError(t, p.Initialize())
	assert.IsType(t, &HTTPFetcher{}, p.fetcher)
	assert.Equal(t, "http:https://api.example.com", p.InputPorts()[0].Config.ResourceID())

	comp, err = NewInput(json.RawMessage(`{"vins": ["X"], "api_base_url": ""}`), component.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, comp.(*Poller).config.VINs, "configured vins win over the environment")

	t.Setenv("VEHICLE_VINS", "")
	t.Setenv("VEHICLE_API_URL", "")
	_, err = NewInput(nil, component.Dependencies{})
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	comp, err = NewInput(json.RawMessage(`{"vins": ["X"]}`), component.Dependencies{})
	require.NoError(t, err)
	assert.True(t, errors.IsFatal(comp.(*Poller).Initialize()), "no api url")

	_, err = NewInput(json.RawMessage(`{"vins": ["X"], "interval": "0s"}`), component.Dependencies{})
	assert.True(t, errors.IsInvalid(err))
}

func TestPoller_Poll(t *testing.T) {
	p, bus, fetcher, registry := newTestPoller(t, `{"vins": ["WBA00000000000001"]}`)
	ctx := context.Background()

	assert.Equal(t, 1, p.Poll(ctx))
	published := bus.Published("vehicle.state")
	require.Len(t, published, 1)
	assert.JSONEq(t, fixtures.VehicleState, string(published[0].Data))

	fetcher.err = errors.WrapTransient(fmt.Errorf("vin X: boom"), "HTTPFetcher", "fetch", "request state")
	assert.Equal(t, 1, p.Poll(ctx), "a partial result is still published")
	assert.Equal(t, float64(1), testutil.ToFloat64(registry.CoreMetrics().ErrorsTotal.WithLabelValues(componentName, "transient")))

	fetcher.err = nil
	bus.FailPublish("vehicle.state", fmt.Errorf("no responders"))
	assert.Equal(t, 0, p.Poll(ctx))
	assert.Equal(t, 2, p.Health().ErrorCount)
}

func TestPoller_Lifecycle(t *testing.T) {
	p, bus, fetcher, _ := newTestPoller(t, `{"vins": ["V1"], "interval": "10ms"}`)
	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), errors.ErrAlreadyStarted)

	require.Eventually(t, func() bool { return fetcher.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Stop(time.Second))
	assert.NoError(t, p.Stop(time.Second))

	calls := fetcher.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, fetcher.callCount(), "no polls after Stop")
	assert.GreaterOrEqual(t, len(bus.Published("vehicle.state")), 2)

	comp, err := NewInput(json.RawMessage(`{"vins": ["V1"]}`), component.Dependencies{})
	require.NoError(t, err)
	assert.Error(t, comp.(*Poller).Start(context.Background()), "start without NATS must fail")
}

func TestRegister(t *testing.T) {
	r := component.NewRegistry()
	require.NoError(t, Register(r))
	assert.Equal(t, "input", r.ListAvailable()[componentName].Type)
}
