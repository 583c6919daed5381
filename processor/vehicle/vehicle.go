// Package vehicle turns raw connected-car state snapshots into time-series
// records, emitting each snapshot version at most once per dedup store.
package vehicle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/mnbf9rca/eventhub-to-timescale/component"
	"github.com/mnbf9rca/eventhub-to-timescale/dedup"
	"github.com/mnbf9rca/eventhub-to-timescale/errors"
	"github.com/mnbf9rca/eventhub-to-timescale/extractor"
	"github.com/mnbf9rca/eventhub-to-timescale/metric"
	"github.com/mnbf9rca/eventhub-to-timescale/natsclient"
	"github.com/mnbf9rca/eventhub-to-timescale/timescale"
)

const componentName = "vehicle"

// Config holds configuration for the vehicle processor
type Config struct {
	InputSubject   string       `json:"input_subject" schema:"type:string,description:Subject carrying raw vehicle state,default:vehicle.state,category:basic"`
	OutputSubject  string       `json:"output_subject" schema:"type:string,description:Subject receiving record batches,default:telemetry.records,category:basic"`
	MonitorSubject string       `json:"monitor_subject" schema:"type:string,description:Copy of every emitted batch (empty disables),default:telemetry.monitor,category:basic"`
	Dedup          dedup.Config `json:"dedup" schema:"type:object,description:Version marker store,category:advanced"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		InputSubject:   "vehicle.state",
		OutputSubject:  "telemetry.records",
		MonitorSubject: "telemetry.monitor",
		Dedup:          dedup.DefaultConfig(),
	}
}

var vehicleSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Processor extracts vehicle snapshots behind a dedup gate
type Processor struct {
	config   Config
	bus      component.Bus
	provider dedup.BucketProvider
	logger   *slog.Logger
	metrics  *metric.Metrics

	gate      extractor.Gate
	extractor *extractor.Vehicle
	closer    io.Closer

	sub         natsclient.Subscription
	stats       component.Stats
	inflight    component.Inflight
	lifecycleMu sync.Mutex
	stateMu     sync.Mutex
}

// NewProcessor creates a vehicle processor from configuration
func NewProcessor(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.WrapInvalid(err, "VehicleProcessor", "NewProcessor", "config unmarshal")
		}
	}
	if cfg.InputSubject == "" || cfg.OutputSubject == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "VehicleProcessor", "NewProcessor", "subject validation")
	}
	if err := cfg.Dedup.Validate(); err != nil {
		return nil, errors.Wrap(err, "VehicleProcessor", "NewProcessor", "dedup validation")
	}

	p := &Processor{
		config:  cfg,
		bus:     deps.Bus(),
		logger:  deps.GetLoggerWithComponent(componentName),
		metrics: deps.CoreMetrics(),
	}
	if deps.NATSClient != nil {
		p.provider = natsProvider{deps.NATSClient}
	}
	return p, nil
}

// natsProvider keeps a nil *natsclient.Client from becoming a non-nil interface.
type natsProvider struct{ *natsclient.Client }

// Initialize is a no-op; the dedup store is opened in Start
func (p *Processor) Initialize() error { return nil }

// Start opens the dedup store and subscribes to vehicle state
func (p *Processor) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.stats.Running() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "VehicleProcessor", "Start", "check running state")
	}
	if p.bus == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "VehicleProcessor", "Start", "NATS client required")
	}

	if p.gate == nil {
		store, closer, err := dedup.Open(ctx, p.config.Dedup, p.provider)
		if err != nil {
			return errors.Wrap(err, "VehicleProcessor", "Start", "open dedup store")
		}
		p.gate = dedup.NewGate(store, dedup.WithLogger(p.logger))
		p.closer = closer
	}
	p.extractor = extractor.NewVehicle(p.gate)

	p.inflight.Open()
	sub, err := p.bus.Subscribe(ctx, p.config.InputSubject, p.handleMessage)
	if err != nil {
		p.inflight.Drain(0)
		if closeErr := p.closeStore(); closeErr != nil {
			p.logger.Warn("Failed to close dedup store", "error", closeErr)
		}
		return errors.WrapTransient(err, "VehicleProcessor", "Start", fmt.Sprintf("subscribe to %s", p.config.InputSubject))
	}
	p.sub = sub

	p.stats.MarkStarted()
	p.logger.Info("Vehicle processor started",
		"input_subject", p.config.InputSubject,
		"output_subject", p.config.OutputSubject,
		"dedup_backend", p.config.Dedup.Backend)
	return nil
}

// Stop unsubscribes, waits for the snapshot in progress and releases the
// dedup store. The next Start opens a fresh store.
func (p *Processor) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.stats.Running() {
		return nil
	}
	p.stats.MarkStopped()

	var unsubErr error
	if p.sub != nil {
		unsubErr = p.sub.Unsubscribe()
		p.sub = nil
	}
	if !p.inflight.Drain(timeout) {
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout), "VehicleProcessor", "Stop", "graceful shutdown")
	}

	if err := p.closeStore(); err != nil {
		return errors.WrapTransient(err, "VehicleProcessor", "Stop", "close dedup store")
	}
	if unsubErr != nil {
		return errors.Wrap(unsubErr, "VehicleProcessor", "Stop", "unsubscribe")
	}
	return nil
}

// closeStore releases a store opened by Start. An injected gate has no
// closer and is kept.
func (p *Processor) closeStore() error {
	if p.closer == nil {
		return nil
	}
	err := p.closer.Close()
	p.closer = nil
	p.gate = nil
	return err
}

// decodeStates accepts one state object or an array of them.
func decodeStates(data []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var states []map[string]any
		if err := dec.Decode(&states); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
		return states, nil
	}
	var state map[string]any
	if err := dec.Decode(&state); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
	}
	return []map[string]any{state}, nil
}

// handleMessage processes snapshots sequentially. Each one is checked
// against the gate, emitted, and only then marked.
func (p *Processor) handleMessage(ctx context.Context, data []byte) {
	leave, ok := p.inflight.Enter()
	if !ok {
		return
	}
	defer leave()

	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	start := time.Now()
	defer func() { p.metrics.RecordDuration(componentName, time.Since(start)) }()
	p.stats.RecordMessage(len(data))

	states, err := decodeStates(data)
	if err != nil {
		p.reject(errors.WrapInvalid(err, "VehicleProcessor", "handleMessage", "decode state"), "")
		return
	}
	for _, state := range states {
		p.metrics.RecordReceived(componentName, "bmw")
		if err := p.process(ctx, state); err != nil {
			vin, _ := state["vin"].(string)
			p.reject(err, vin)
		}
	}
}

func (p *Processor) process(ctx context.Context, state map[string]any) error {
	update, err := p.extractor.Extract(ctx, state)
	if err != nil {
		if errors.IsTransient(err) {
			return errors.WrapTransient(err, "VehicleProcessor", "process", "check dedup marker")
		}
		return errors.WrapInvalid(err, "VehicleProcessor", "process", "extract state")
	}
	if update.Duplicate {
		p.metrics.RecordDuplicate()
		p.logger.Debug("Vehicle state already processed", "vin", update.VIN, "version", update.Version)
		return nil
	}

	if len(update.Records) > 0 {
		payload, err := timescale.EncodeBatch(update.Records)
		if err != nil {
			return errors.WrapFatal(err, "VehicleProcessor", "process", "encode records")
		}
		if err := p.bus.Publish(ctx, p.config.OutputSubject, payload); err != nil {
			return errors.WrapTransient(err, "VehicleProcessor", "process", "publish records")
		}
		if p.config.MonitorSubject != "" {
			if err := p.bus.Publish(ctx, p.config.MonitorSubject, payload); err != nil {
				return errors.WrapTransient(err, "VehicleProcessor", "process", "publish monitor copy")
			}
		}
		p.metrics.RecordEmitted(componentName, "bmw", len(update.Records))
	}

	if err := p.extractor.Commit(ctx, update); err != nil {
		return errors.WrapTransient(err, "VehicleProcessor", "process", "mark version")
	}
	p.logger.Debug("Vehicle state emitted",
		"vin", update.VIN,
		"version", update.Version,
		"records", len(update.Records))
	return nil
}

func (p *Processor) reject(err error, vin string) {
	class := errors.Classify(err)
	p.stats.RecordError(err)
	p.metrics.RecordError(componentName, class.String())

	level := slog.LevelWarn
	if class != errors.ErrorInvalid {
		level = slog.LevelError
	}
	p.logger.Log(context.Background(), level, "Vehicle state skipped",
		"vin", vin,
		"class", class.String(),
		"error", err)
}

// Meta returns metadata describing this processor
func (p *Processor) Meta() component.Metadata {
	return component.Metadata{
		Name:        componentName,
		Type:        "processor",
		Description: "Extracts connected-car snapshots once per version",
		Version:     "1.0.0",
	}
}

// InputPorts returns the vehicle state subject and the dedup store
func (p *Processor) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "state",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "Raw vehicle state snapshots",
			Config:      component.NATSPort{Subject: p.config.InputSubject},
		},
		{
			Name:        "markers",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "Processed version markers",
			Config:      component.KVPort{Bucket: p.config.Dedup.Prefix},
		},
	}
}

// OutputPorts returns the record and monitor subjects
func (p *Processor) OutputPorts() []component.Port {
	ports := []component.Port{{
		Name:        "records",
		Direction:   component.DirectionOutput,
		Required:    true,
		Description: "JSON arrays of atomic records",
		Config:      component.NATSPort{Subject: p.config.OutputSubject},
	}}
	if p.config.MonitorSubject != "" {
		ports = append(ports, component.Port{
			Name:        "monitor",
			Direction:   component.DirectionOutput,
			Description: "Monitor copy of every emitted batch",
			Config:      component.NATSPort{Subject: p.config.MonitorSubject},
		})
	}
	return ports
}

// ConfigSchema returns the configuration schema
func (p *Processor) ConfigSchema() component.ConfigSchema { return vehicleSchema }

// Health returns the current health status
func (p *Processor) Health() component.HealthStatus { return p.stats.Health() }

// DataFlow returns current flow metrics
func (p *Processor) DataFlow() component.FlowMetrics { return p.stats.DataFlow() }

// Register registers the vehicle processor with the registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        componentName,
		Factory:     NewProcessor,
		Schema:      vehicleSchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "telemetry",
		Description: "Extracts connected-car snapshots once per version",
		Version:     "1.0.0",
	})
}
