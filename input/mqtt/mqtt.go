// Package mqtt bridges MQTT publishers (smart-meter bridge, home-automation
// bus, energy monitor) onto NATS. Every broker message becomes one
// envelope on telemetry.raw.<publisher>.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/mnbf9rca/eventhub-to-timescale/component"
	"github.com/mnbf9rca/eventhub-to-timescale/config"
	"github.com/mnbf9rca/eventhub-to-timescale/errors"
	"github.com/mnbf9rca/eventhub-to-timescale/message"
	"github.com/mnbf9rca/eventhub-to-timescale/metric"
	"github.com/mnbf9rca/eventhub-to-timescale/pkg/tlsutil"
	"github.com/mnbf9rca/eventhub-to-timescale/router"
)

const componentName = "mqtt"

// Config holds configuration for the MQTT bridge
type Config struct {
	Broker         string          `json:"broker" schema:"type:string,description:Broker URL,default:tcp://localhost:1883,category:basic"`
	ClientID       string          `json:"client_id" schema:"type:string,description:MQTT client id,default:eventhub-to-timescale,category:basic"`
	Username       string          `json:"username" schema:"type:string,description:Broker username,category:advanced"`
	Password       string          `json:"password" schema:"type:string,description:Broker password,category:advanced,hidden"`
	Topics         []string        `json:"topics" schema:"type:array,description:Topic filters,default:glow/#|homie/#|emon/#,category:basic"`
	QoS            int             `json:"qos" schema:"type:int,description:Subscription QoS,default:1,min:0,max:2,category:advanced"`
	SubjectPrefix  string          `json:"subject_prefix" schema:"type:string,description:NATS subject prefix for envelopes,default:telemetry.raw,category:basic"`
	ConnectTimeout config.Duration `json:"connect_timeout" schema:"type:string,description:Broker connect deadline,default:10s,category:advanced"`

	TLS tlsutil.ClientConfig `json:"tls,omitempty" schema:"type:object,description:Broker TLS settings,category:advanced"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       "eventhub-to-timescale",
		Topics:         []string{"glow/#", "homie/#", "emon/#"},
		QoS:            1,
		SubjectPrefix:  "telemetry.raw",
		ConnectTimeout: config.Duration(10 * time.Second),
	}
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	switch {
	case c.Broker == "":
		return errors.WrapInvalid(fmt.Errorf("%w: broker", errors.ErrMissingConfig), "Config", "Validate", "check broker")
	case len(c.Topics) == 0:
		return errors.WrapInvalid(fmt.Errorf("%w: topics", errors.ErrMissingConfig), "Config", "Validate", "check topics")
	case c.QoS < 0 || c.QoS > 2:
		return errors.WrapInvalid(fmt.Errorf("%w: qos %d", errors.ErrInvalidConfig, c.QoS), "Config", "Validate", "check qos")
	case c.SubjectPrefix == "" || strings.ContainsAny(c.SubjectPrefix, "*> "):
		return errors.WrapInvalid(fmt.Errorf("%w: subject_prefix %q", errors.ErrInvalidConfig, c.SubjectPrefix), "Config", "Validate", "check prefix")
	}
	for _, t := range c.Topics {
		if t == "" {
			return errors.WrapInvalid(fmt.Errorf("%w: empty topic filter", errors.ErrInvalidConfig), "Config", "Validate", "check topics")
		}
	}
	return c.TLS.Validate()
}

var mqttSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Input subscribes to MQTT filters and republishes envelopes on NATS
type Input struct {
	config  Config
	bus     component.Bus
	client  Client
	logger  *slog.Logger
	metrics *metric.Metrics
	now     func() time.Time

	ctx         context.Context
	cancel      context.CancelFunc
	stats       component.Stats
	lifecycleMu sync.Mutex
}

// NewInput creates an MQTT bridge from configuration
func NewInput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.WrapInvalid(err, "MQTTInput", "NewInput", "config unmarshal")
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tlsConfig, err := tlsutil.LoadClientConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	logger := deps.GetLoggerWithComponent(componentName)
	return &Input{
		config:  cfg,
		bus:     deps.Bus(),
		client:  newPahoClient(cfg, tlsConfig, logger),
		logger:  logger,
		metrics: deps.CoreMetrics(),
		now:     time.Now,
	}, nil
}

// Initialize is a no-op; the broker session is opened in Start
func (i *Input) Initialize() error { return nil }

// Start connects to the broker and subscribes to every filter
func (i *Input) Start(ctx context.Context) error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	if i.stats.Running() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "MQTTInput", "Start", "check running state")
	}
	if i.bus == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "MQTTInput", "Start", "NATS client required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, i.config.ConnectTimeout.Std())
	defer cancel()
	if err := i.client.Connect(connectCtx); err != nil {
		return err
	}

	// Handlers outlive Start's ctx; Stop cancels this one.
	i.ctx, i.cancel = context.WithCancel(context.Background())
	for _, filter := range i.config.Topics {
		if err := i.client.Subscribe(connectCtx, filter, byte(i.config.QoS), i.handleMessage); err != nil {
			i.cancel()
			i.client.Disconnect(0)
			return err
		}
	}

	i.stats.MarkStarted()
	i.logger.Info("MQTT bridge started",
		"broker", i.config.Broker,
		"topics", i.config.Topics,
		"subject_prefix", i.config.SubjectPrefix)
	return nil
}

// Stop disconnects from the broker, letting in-flight messages drain
func (i *Input) Stop(timeout time.Duration) error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	if !i.stats.Running() {
		return nil
	}
	i.stats.MarkStopped()
	i.client.Disconnect(timeout)
	i.cancel()
	return nil
}

// Subject returns the NATS subject an envelope for p is published on.
func (i *Input) Subject(p router.Publisher) string {
	return i.config.SubjectPrefix + "." + p.String()
}

func (i *Input) handleMessage(topic string, payload []byte) {
	ctx := i.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	i.stats.RecordMessage(len(payload))

	_, publisher, err := router.Resolve(topic)
	if err != nil {
		i.reject(errors.WrapInvalid(err, "MQTTInput", "handleMessage", "resolve publisher"), topic)
		return
	}
	i.metrics.RecordReceived(componentName, publisher.String())

	data, err := json.Marshal(message.NewEnvelope(topic, i.now(), payload))
	if err != nil {
		i.reject(errors.WrapFatal(err, "MQTTInput", "handleMessage", "encode envelope"), topic)
		return
	}
	if err := i.bus.Publish(ctx, i.Subject(publisher), data); err != nil {
		i.reject(errors.WrapTransient(err, "MQTTInput", "handleMessage", "publish envelope"), topic)
		return
	}
	i.logger.Debug("Bridged MQTT message", "topic", topic, "size_bytes", len(payload))
}

func (i *Input) reject(err error, topic string) {
	class := errors.Classify(err)
	i.stats.RecordError(err)
	i.metrics.RecordError(componentName, class.String())
	level := slog.LevelWarn
	if class != errors.ErrorInvalid {
		level = slog.LevelError
	}
	i.logger.Log(context.Background(), level, "MQTT message dropped", "topic", topic, "class", class.String(), "error", err)
}

// Meta returns metadata describing this input
func (i *Input) Meta() component.Metadata {
	return component.Metadata{
		Name:        componentName,
		Type:        "input",
		Description: "Bridges MQTT telemetry publishers onto NATS",
		Version:     "1.0.0",
	}
}

// InputPorts returns one port per topic filter
func (i *Input) InputPorts() []component.Port {
	ports := make([]component.Port, 0, len(i.config.Topics))
	for _, filter := range i.config.Topics {
		ports = append(ports, component.Port{
			Name:        filter,
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "MQTT topic filter",
			Config:      component.MQTTPort{Broker: i.config.Broker, Topic: filter},
		})
	}
	return ports
}

// OutputPorts returns the envelope subject pattern
func (i *Input) OutputPorts() []component.Port {
	return []component.Port{{
		Name:        "envelopes",
		Direction:   component.DirectionOutput,
		Required:    true,
		Description: "One envelope per MQTT message",
		Config:      component.NATSPort{Subject: i.config.SubjectPrefix + ".>"},
	}}
}

// ConfigSchema returns the configuration schema
func (i *Input) ConfigSchema() component.ConfigSchema { return mqttSchema }

// Health returns the current health status
func (i *Input) Health() component.HealthStatus { return i.stats.Health() }

// DataFlow returns current flow metrics
func (i *Input) DataFlow() component.FlowMetrics { return i.stats.DataFlow() }

// Register registers the MQTT bridge with the registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        componentName,
		Factory:     NewInput,
		Schema:      mqttSchema,
		Type:        "input",
		Protocol:    "mqtt",
		Domain:      "telemetry",
		Description: "Bridges MQTT telemetry publishers onto NATS",
		Version:     "1.0.0",
	})
}
