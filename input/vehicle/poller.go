// Package vehicle provides the connected-car poller input. On every tick it
// asks a StateFetcher for the latest state of each configured vehicle and
// publishes every raw state, unchanged, for the vehicle processor.
package vehicle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/mnbf9rca/eventhub-to-timescale/component"
	"github.com/mnbf9rca/eventhub-to-timescale/config"
	"github.com/mnbf9rca/eventhub-to-timescale/errors"
	"github.com/mnbf9rca/eventhub-to-timescale/metric"
	"github.com/mnbf9rca/eventhub-to-timescale/pkg/tlsutil"
)

const componentName = "vehicle-poller"

// Config holds configuration for the vehicle poller
type Config struct {
	Subject           string          `json:"subject" schema:"type:string,description:Subject raw state is published on,default:vehicle.state,category:basic"`
	Interval          config.Duration `json:"interval" schema:"type:string,description:Polling interval,default:5m,category:basic"`
	VINs              []string        `json:"vins" schema:"type:array,description:Vehicles to poll (falls back to VEHICLE_VINS),category:basic"`
	APIBaseURL        string          `json:"api_base_url" schema:"type:string,description:Vehicle API base URL (falls back to VEHICLE_API_URL),category:basic"`
	Token             string          `json:"token" schema:"type:string,description:Bearer token (falls back to VEHICLE_API_TOKEN),category:advanced,hidden"`
	RequestsPerSecond float64         `json:"requests_per_second" schema:"type:float,description:API request rate,default:1,category:advanced"`
	Burst             int             `json:"burst" schema:"type:int,description:API request burst,default:1,min:1,category:advanced"`
	RequestTimeout    config.Duration `json:"request_timeout" schema:"type:string,description:Deadline for one API request,default:30s,category:advanced"`

	TLS tlsutil.ClientConfig `json:"tls,omitempty" schema:"type:object,description:API client TLS settings,category:advanced"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Subject:           "vehicle.state",
		Interval:          config.Duration(5 * time.Minute),
		RequestsPerSecond: 1,
		Burst:             1,
		RequestTimeout:    config.Duration(30 * time.Second),
	}
}

// applyEnv fills unset fields from the environment.
func (c *Config) applyEnv() {
	if len(c.VINs) == 0 {
		for _, vin := range strings.Split(os.Getenv("VEHICLE_VINS"), ",") {
			if vin = strings.TrimSpace(vin); vin != "" {
				c.VINs = append(c.VINs, vin)
			}
		}
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = os.Getenv("VEHICLE_API_URL")
	}
	if c.Token == "" {
		c.Token = os.Getenv("VEHICLE_API_TOKEN")
	}
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	switch {
	case c.Subject == "":
		return errors.WrapInvalid(fmt.Errorf("%w: subject", errors.ErrMissingConfig), "Config", "Validate", "check subject")
	case len(c.VINs) == 0:
		return errors.WrapInvalid(fmt.Errorf("%w: vins or VEHICLE_VINS", errors.ErrMissingConfig), "Config", "Validate", "check vins")
	case c.Interval.Std() <= 0:
		return errors.WrapInvalid(fmt.Errorf("%w: interval must be positive", errors.ErrInvalidConfig), "Config", "Validate", "check interval")
	case c.RequestsPerSecond < 0:
		return errors.WrapInvalid(fmt.Errorf("%w: requests_per_second cannot be negative", errors.ErrInvalidConfig), "Config", "Validate", "check rate")
	}
	return c.TLS.Validate()
}

var pollerSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Poller publishes the latest state of each vehicle on a fixed interval
type Poller struct {
	config  Config
	bus     component.Bus
	fetcher StateFetcher
	logger  *slog.Logger
	metrics *metric.Metrics

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	stats       component.Stats
	lifecycleMu sync.Mutex
}

// NewInput creates a vehicle poller from configuration
func NewInput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.WrapInvalid(err, "VehiclePoller", "NewInput", "config unmarshal")
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Poller{
		config:  cfg,
		bus:     deps.Bus(),
		logger:  deps.GetLoggerWithComponent(componentName),
		metrics: deps.CoreMetrics(),
	}, nil
}

// Initialize builds the HTTP fetcher unless one was supplied
func (p *Poller) Initialize() error {
	if p.fetcher != nil {
		return nil
	}
	if p.config.APIBaseURL == "" {
		return errors.WrapFatal(fmt.Errorf("%w: api_base_url or VEHICLE_API_URL", errors.ErrMissingConfig), "VehiclePoller", "Initialize", "build fetcher")
	}
	tlsConfig, err := tlsutil.LoadClientConfig(p.config.TLS)
	if err != nil {
		return err
	}
	fetcher, err := NewHTTPFetcher(p.config.APIBaseURL, p.config.Token,
		p.config.RequestsPerSecond, p.config.Burst, p.config.RequestTimeout.Std(), WithTLS(tlsConfig))
	if err != nil {
		return err
	}
	p.fetcher = fetcher
	return nil
}

// Start runs one poll immediately and then one per interval
func (p *Poller) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.stats.Running() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "VehiclePoller", "Start", "check running state")
	}
	if p.bus == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "VehiclePoller", "Start", "NATS client required")
	}
	if p.fetcher == nil {
		return errors.WrapFatal(errors.ErrNotStarted, "VehiclePoller", "Start", "fetcher not initialized")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go p.loop(loopCtx)

	p.stats.MarkStarted()
	p.logger.Info("Vehicle poller started",
		"vehicles", len(p.config.VINs),
		"interval", p.config.Interval.String(),
		"subject", p.config.Subject)
	return nil
}

// Stop cancels the poll in progress and waits for the loop to exit
func (p *Poller) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.stats.Running() {
		return nil
	}
	p.stats.MarkStopped()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout), "VehiclePoller", "Stop", "graceful shutdown")
	}
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval.Std())
	defer ticker.Stop()

	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll fetches and publishes once. It returns the number of states
// published.
func (p *Poller) Poll(ctx context.Context) int {
	start := time.Now()
	defer func() { p.metrics.RecordDuration(componentName, time.Since(start)) }()

	states, err := p.fetcher.FetchLatestState(ctx, p.config.VINs)
	if err != nil && ctx.Err() == nil {
		p.fail(err, "fetch state")
	}

	published := 0
	for _, state := range states {
		p.stats.RecordMessage(len(state))
		p.metrics.RecordReceived(componentName, "bmw")
		if err := p.bus.Publish(ctx, p.config.Subject, state); err != nil {
			p.fail(errors.WrapTransient(err, "VehiclePoller", "Poll", "publish state"), "publish state")
			continue
		}
		published++
	}
	p.logger.Debug("Vehicle poll complete", "fetched", len(states), "published", published)
	return published
}

func (p *Poller) fail(err error, action string) {
	class := errors.Classify(err)
	p.stats.RecordError(err)
	p.metrics.RecordError(componentName, class.String())
	p.logger.Error("Vehicle poll failed", "action", action, "class", class.String(), "error", err)
}

// Meta returns metadata describing this input
func (p *Poller) Meta() component.Metadata {
	return component.Metadata{
		Name:        componentName,
		Type:        "input",
		Description: "Polls the vehicle API for raw state snapshots",
		Version:     "1.0.0",
	}
}

// InputPorts returns the vehicle API
func (p *Poller) InputPorts() []component.Port {
	return []component.Port{{
		Name:        "api",
		Direction:   component.DirectionInput,
		Required:    true,
		Description: "Vehicle state API",
		Config:      component.HTTPPort{URL: p.config.APIBaseURL},
	}}
}

// OutputPorts returns the raw state subject
func (p *Poller) OutputPorts() []component.Port {
	return []component.Port{{
		Name:        "state",
		Direction:   component.DirectionOutput,
		Required:    true,
		Description: "Raw vehicle state snapshots",
		Config:      component.NATSPort{Subject: p.config.Subject},
	}}
}

// ConfigSchema returns the configuration schema
func (p *Poller) ConfigSchema() component.ConfigSchema { return pollerSchema }

// Health returns the current health status
func (p *Poller) Health() component.HealthStatus { return p.stats.Health() }

// DataFlow returns current flow metrics
func (p *Poller) DataFlow() component.FlowMetrics { return p.stats.DataFlow() }

// Register registers the vehicle poller with the registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        componentName,
		Factory:     NewInput,
		Schema:      pollerSchema,
		Type:        "input",
		Protocol:    "http",
		Domain:      "telemetry",
		Description: "Polls the vehicle API for raw state snapshots",
		Version:     "1.0.0",
	})
}
