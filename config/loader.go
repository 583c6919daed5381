package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mnbf9rca/eventhub-to-timescale/errors"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "E2T"

const (
	maxConfigSize  = 10 << 20
	maxConfigDepth = 100
)

// Loader merges configuration layers
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a loader with no file layers
func NewLoader() *Loader {
	return &Loader{envPrefix: EnvPrefix, getenv: os.Getenv}
}

// AddLayer appends a file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation runs Config.Validate at the end of Load
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads defaults plus a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load applies defaults, file layers, environment overrides and validation
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Defaults())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		layer, err := readLayer(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		merged = deepMerge(merged, layer)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "encode merged layers")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "Loader", "Load", "decode merged layers")
	}

	l.applyEnvOverrides(&cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func (l *Loader) env(key string) string {
	return l.getenv(l.envPrefix + "_" + key)
}

func (l *Loader) applyEnvOverrides(cfg *Config) {
	if v := l.env("PLATFORM_ID"); v != "" {
		cfg.Platform.ID = v
	}
	if v := l.env("LOG_LEVEL"); v != "" {
		cfg.Platform.LogLevel = strings.ToLower(v)
	}
	if v := l.env("LOG_FORMAT"); v != "" {
		cfg.Platform.LogFormat = strings.ToLower(v)
	}
	if v := l.env("NATS_URLS"); v != "" {
		urls := strings.Split(v, ",")
		for i := range urls {
			urls[i] = strings.TrimSpace(urls[i])
		}
		cfg.NATS.URLs = urls
	}
	if v := l.env("NATS_USERNAME"); v != "" {
		cfg.NATS.Username = v
	}
	if v := l.env("NATS_PASSWORD"); v != "" {
		cfg.NATS.Password = v
	}
	if v := l.env("NATS_TOKEN"); v != "" {
		cfg.NATS.Token = v
	}
	if v := l.env("METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := l.env("METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// readLayer decodes a JSON or YAML file into a generic map
func readLayer(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var layer map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &layer); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
	default:
		if err := json.Unmarshal(data, &layer); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
	}

	if depth(layer) > maxConfigDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", errors.ErrInvalidConfig, maxConfigDepth)
	}
	return layer, nil
}

func safeReadFile(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty config path", errors.ErrMissingConfig)
	}
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", clean)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}
	return os.ReadFile(clean)
}

func depth(v any) int {
	switch val := v.(type) {
	case map[string]any:
		deepest := 0
		for _, child := range val {
			if d := depth(child); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	case []any:
		deepest := 0
		for _, child := range val {
			if d := depth(child); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	default:
		return 0
	}
}

// deepMerge merges override into base. Nested maps merge, everything else
// (including lists) replaces. Nil values in override are ignored.
func deepMerge(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := result[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMerge(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}
