// Package normalizer turns batches of raw publisher envelopes into batches
// of atomic time-series records.
package normalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mnbf9rca/eventhub-to-timescale/component"
	"github.com/mnbf9rca/eventhub-to-timescale/errors"
	"github.com/mnbf9rca/eventhub-to-timescale/extractor"
	"github.com/mnbf9rca/eventhub-to-timescale/message"
	"github.com/mnbf9rca/eventhub-to-timescale/metric"
	"github.com/mnbf9rca/eventhub-to-timescale/natsclient"
	"github.com/mnbf9rca/eventhub-to-timescale/router"
	"github.com/mnbf9rca/eventhub-to-timescale/timescale"
	"github.com/mnbf9rca/eventhub-to-timescale/timeseries"
)

const componentName = "normalizer"

// Config holds configuration for the normalizer
type Config struct {
	InputSubject  string `json:"input_subject" schema:"type:string,description:Subject carrying raw envelope batches,default:telemetry.raw.>,category:basic"`
	OutputSubject string `json:"output_subject" schema:"type:string,description:Subject receiving record batches,default:telemetry.records,category:basic"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		InputSubject:  "telemetry.raw.>",
		OutputSubject: "telemetry.records",
	}
}

var normalizerSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Processor routes each envelope to its publisher's extractor
type Processor struct {
	config   Config
	bus      component.Bus
	logger   *slog.Logger
	metrics  *metric.Metrics
	registry *metric.MetricsRegistry
	outcomes *prometheus.CounterVec

	sub         natsclient.Subscription
	stats       component.Stats
	lifecycleMu sync.Mutex
	inflight    component.Inflight
}

// NewProcessor creates a normalizer from configuration
func NewProcessor(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Normalizer", "NewProcessor", "config unmarshal")
		}
	}
	if cfg.InputSubject == "" || cfg.OutputSubject == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Normalizer", "NewProcessor", "subject validation")
	}

	return &Processor{
		config:   cfg,
		bus:      deps.Bus(),
		logger:   deps.GetLoggerWithComponent(componentName),
		metrics:  deps.CoreMetrics(),
		registry: deps.MetricsRegistry,
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "e2t",
			Subsystem: "normalizer",
			Name:      "envelopes_total",
			Help:      "Envelopes handled, by outcome (emitted, ignored, rejected)",
		}, []string{"outcome"}),
	}, nil
}

// Initialize registers the processor's own metrics
func (p *Processor) Initialize() error {
	if p.registry == nil {
		return nil
	}
	if err := p.registry.RegisterCounterVec(componentName, "envelopes", p.outcomes); err != nil {
		p.logger.Warn("Normalizer metrics not registered", "error", err)
	}
	return nil
}

// Start subscribes to the raw envelope subject
func (p *Processor) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.stats.Running() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Normalizer", "Start", "check running state")
	}
	if p.bus == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Normalizer", "Start", "NATS client required")
	}

	p.inflight.Open()
	sub, err := p.bus.Subscribe(ctx, p.config.InputSubject, p.handleBatch)
	if err != nil {
		p.inflight.Drain(0)
		return errors.WrapTransient(err, "Normalizer", "Start", fmt.Sprintf("subscribe to %s", p.config.InputSubject))
	}
	p.sub = sub

	p.stats.MarkStarted()
	p.logger.Info("Normalizer started",
		"input_subject", p.config.InputSubject,
		"output_subject", p.config.OutputSubject)
	return nil
}

// Stop unsubscribes and waits for the batch in progress to finish
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
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout), "Normalizer", "Stop", "graceful shutdown")
	}
	if unsubErr != nil {
		return errors.Wrap(unsubErr, "Normalizer", "Stop", "unsubscribe")
	}
	return nil
}

// Normalize routes env to its extractor and returns its records, tagged
// with a fresh correlation id. Uninteresting topics give no records and no
// error.
func Normalize(env message.Envelope) ([]timeseries.Record, router.Publisher, error) {
	route, publisher, err := router.Resolve(env.Topic)
	if err != nil {
		return nil, publisher, errors.WrapInvalid(err, "Normalizer", "Normalize", "route topic")
	}
	extract, err := extractor.Dispatch(publisher)
	if err != nil {
		return nil, publisher, errors.WrapInvalid(err, "Normalizer", "Normalize", "dispatch publisher")
	}

	records, err := extract(extractor.Input{
		Envelope:      env,
		Route:         route,
		CorrelationID: timeseries.NewCorrelationID(),
	})
	if err != nil {
		return nil, publisher, errors.WrapInvalid(err, "Normalizer", "Normalize", fmt.Sprintf("extract %s", publisher))
	}
	return records, publisher, nil
}

// handleBatch processes envelopes one at a time. A failing envelope is
// logged and skipped.
func (p *Processor) handleBatch(ctx context.Context, data []byte) {
	leave, ok := p.inflight.Enter()
	if !ok {
		return
	}
	defer leave()

	start := time.Now()
	defer func() { p.metrics.RecordDuration(componentName, time.Since(start)) }()
	p.stats.RecordMessage(len(data))

	envelopes, err := message.DecodeBatch(data)
	if err != nil {
		p.reject(errors.WrapInvalid(err, "Normalizer", "handleBatch", "decode batch"), "")
		return
	}

	for _, env := range envelopes {
		records, publisher, err := Normalize(env)
		p.metrics.RecordReceived(componentName, publisher.String())
		if err != nil {
			p.reject(err, env.Topic)
			continue
		}
		if len(records) == 0 {
			p.outcomes.WithLabelValues("ignored").Inc()
			continue
		}

		payload, err := timescale.EncodeBatch(records)
		if err != nil {
			p.reject(errors.WrapFatal(err, "Normalizer", "handleBatch", "encode records"), env.Topic)
			continue
		}
		if err := p.bus.Publish(ctx, p.config.OutputSubject, payload); err != nil {
			p.reject(errors.WrapTransient(err, "Normalizer", "handleBatch", "publish records"), env.Topic)
			continue
		}

		p.outcomes.WithLabelValues("emitted").Inc()
		p.metrics.RecordEmitted(componentName, publisher.String(), len(records))
		p.logger.Debug("Envelope normalized",
			"topic", env.Topic,
			"records", len(records),
			"correlation_id", records[0].CorrelationID)
	}
}

func (p *Processor) reject(err error, topic string) {
	class := errors.Classify(err)
	p.stats.RecordError(err)
	p.outcomes.WithLabelValues("rejected").Inc()
	p.metrics.RecordError(componentName, class.String())

	level := slog.LevelWarn
	if class != errors.ErrorInvalid {
		level = slog.LevelError
	}
	p.logger.Log(context.Background(), level, "Envelope skipped",
		"topic", topic,
		"class", class.String(),
		"error", err)
}

// Meta returns metadata describing this processor
func (p *Processor) Meta() component.Metadata {
	return component.Metadata{
		Name:        componentName,
		Type:        "processor",
		Description: "Normalizes glow, homie and emon envelopes into time-series records",
		Version:     "1.0.0",
	}
}

// InputPorts returns the raw envelope subject
func (p *Processor) InputPorts() []component.Port {
	return []component.Port{{
		Name:        "envelopes",
		Direction:   component.DirectionInput,
		Required:    true,
		Description: "Raw publisher envelopes",
		Config:      component.NATSPort{Subject: p.config.InputSubject},
	}}
}

// OutputPorts returns the record subject
func (p *Processor) OutputPorts() []component.Port {
	return []component.Port{{
		Name:        "records",
		Direction:   component.DirectionOutput,
		Required:    true,
		Description: "JSON arrays of atomic records",
		Config:      component.NATSPort{Subject: p.config.OutputSubject},
	}}
}

// ConfigSchema returns the configuration schema
func (p *Processor) ConfigSchema() component.ConfigSchema { return normalizerSchema }

// Health returns the current health status
func (p *Processor) Health() component.HealthStatus { return p.stats.Health() }

// DataFlow returns current flow metrics
func (p *Processor) DataFlow() component.FlowMetrics { return p.stats.DataFlow() }

// Register registers the normalizer with the registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        componentName,
		Factory:     NewProcessor,
		Schema:      normalizerSchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "telemetry",
		Description: "Normalizes publisher envelopes into time-series records",
		Version:     "1.0.0",
	})
}
