package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/mnbf9rca/eventhub-to-timescale/errors"
)

// ComponentType is the role a component plays in the pipeline
type ComponentType string

const (
	ComponentTypeInput     ComponentType = "input"
	ComponentTypeProcessor ComponentType = "processor"
	ComponentTypeOutput    ComponentType = "output"
)

// ComponentConfig configures one component instance
type ComponentConfig struct {
	Name    string          `json:"name"` // factory name
	Type    ComponentType   `json:"type"`
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// ComponentConfigs maps instance names to their configuration
type ComponentConfigs map[string]ComponentConfig

// Config is the complete process configuration
type Config struct {
	Version    string           `json:"version,omitempty"`
	Platform   PlatformConfig   `json:"platform"`
	NATS       NATSConfig       `json:"nats"`
	Metrics    MetricsConfig    `json:"metrics"`
	Components ComponentConfigs `json:"components"`
}

// PlatformConfig identifies the deployment and sets up logging
type PlatformConfig struct {
	ID        string `json:"id"`
	LogLevel  string `json:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty"`
}

// NATSConfig configures the inter-stage message bus
type NATSConfig struct {
	URLs          []string        `json:"urls"`
	Username      string          `json:"username,omitempty"`
	Password      string          `json:"password,omitempty"`
	Token         string          `json:"token,omitempty"`
	MaxReconnects int             `json:"max_reconnects"`
	ReconnectWait Duration        `json:"reconnect_wait"`
	JetStream     JetStreamConfig `json:"jetstream"`
}

// JetStreamConfig toggles JetStream, which the KV dedup backend needs
type JetStreamConfig struct {
	Enabled bool `json:"enabled"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
	Path    string `json:"path"`
}

// Defaults returns the built-in configuration layer
func Defaults() *Config {
	return &Config{
		Platform: PlatformConfig{
			ID:        "eventhub-to-timescale",
			LogLevel:  "info",
			LogFormat: "json",
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
			JetStream:     JetStreamConfig{Enabled: true},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
			Path:    "/metrics",
		},
		Components: ComponentConfigs{
			"mqtt":       {Name: "mqtt", Type: ComponentTypeInput, Enabled: true},
			"normalizer": {Name: "normalizer", Type: ComponentTypeProcessor, Enabled: true},
			"vehicle":    {Name: "vehicle", Type: ComponentTypeProcessor, Enabled: true},
			"timescale":  {Name: "timescale", Type: ComponentTypeOutput, Enabled: true},
		},
	}
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "text"}
	validURLSchemes = []string{"nats", "tls", "ws", "wss"}
)

// Validate checks the configuration for values the binary cannot run with
func (c *Config) Validate() error {
	if c.Platform.ID == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: platform.id is required", errors.ErrMissingConfig),
			"Config", "Validate", "platform validation")
	}
	if c.Platform.LogLevel != "" && !slices.Contains(validLogLevels, c.Platform.LogLevel) {
		return errors.WrapInvalid(fmt.Errorf("%w: log_level %q", errors.ErrInvalidConfig, c.Platform.LogLevel),
			"Config", "Validate", "platform validation")
	}
	if c.Platform.LogFormat != "" && !slices.Contains(validLogFormats, c.Platform.LogFormat) {
		return errors.WrapInvalid(fmt.Errorf("%w: log_format %q", errors.ErrInvalidConfig, c.Platform.LogFormat),
			"Config", "Validate", "platform validation")
	}

	if len(c.NATS.URLs) == 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: at least one NATS URL is required", errors.ErrMissingConfig),
			"Config", "Validate", "NATS validation")
	}
	for _, raw := range c.NATS.URLs {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || !slices.Contains(validURLSchemes, u.Scheme) {
			return errors.WrapInvalid(fmt.Errorf("%w: NATS URL %q", errors.ErrInvalidConfig, raw),
				"Config", "Validate", "NATS validation")
		}
	}
	if c.NATS.ReconnectWait < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: reconnect_wait cannot be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "NATS validation")
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: metrics.address is required when metrics are enabled", errors.ErrMissingConfig),
			"Config", "Validate", "metrics validation")
	}

	for name, comp := range c.Components {
		if comp.Name == "" {
			return errors.WrapInvalid(fmt.Errorf("%w: component %q has no factory name", errors.ErrMissingConfig, name),
				"Config", "Validate", "component validation")
		}
		switch comp.Type {
		case ComponentTypeInput, ComponentTypeProcessor, ComponentTypeOutput:
		default:
			return errors.WrapInvalid(fmt.Errorf("%w: component %q has type %q", errors.ErrInvalidConfig, name, comp.Type),
				"Config", "Validate", "component validation")
		}
		if len(comp.Config) > 0 && !json.Valid(comp.Config) {
			return errors.WrapInvalid(fmt.Errorf("%w: component %q config is not valid JSON", errors.ErrInvalidConfig, name),
				"Config", "Validate", "component validation")
		}
	}
	return nil
}

// EnabledComponents returns the enabled instance names in sorted order
func (c *Config) EnabledComponents() []string {
	names := make([]string, 0, len(c.Components))
	for name, comp := range c.Components {
		if comp.Enabled {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Clone returns a deep copy
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.NATS.URLs = slices.Clone(c.NATS.URLs)
	out.Components = make(ComponentConfigs, len(c.Components))
	for name, comp := range c.Components {
		comp.Config = slices.Clone(comp.Config)
		out.Components[name] = comp
	}
	return &out
}

// String renders the configuration with secrets redacted
func (c *Config) String() string {
	redacted := c.Clone()
	if redacted.NATS.Password != "" {
		redacted.NATS.Password = "***"
	}
	if redacted.NATS.Token != "" {
		redacted.NATS.Token = "***"
	}
	data, err := json.Marshal(redacted)
	if err != nil {
		return fmt.Sprintf("Config{platform=%s}", c.Platform.ID)
	}
	return string(data)
}

// SafeConfig guards a Config for concurrent readers
type SafeConfig struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewSafeConfig wraps a copy of cfg
func NewSafeConfig(cfg *Config) *SafeConfig {
	return &SafeConfig{cfg: cfg.Clone()}
}

// Get returns a copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.cfg.Clone()
}

// Update replaces the configuration after validating it
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sc.mu.Lock()
	sc.cfg = cfg.Clone()
	sc.mu.Unlock()
	return nil
}
