package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mnbf9rca/eventhub-to-timescale/config"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPaths     []string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	Validate        bool
}

// layerList collects repeated -config flags in order
type layerList []string

func (l *layerList) String() string { return strings.Join(*l, ",") }

func (l *layerList) Set(v string) error {
	if v == "" {
		return fmt.Errorf("empty config path")
	}
	*l = append(*l, v)
	return nil
}

type envFunc func(string) string

func (e envFunc) get(key, fallback string) string {
	if v := e(config.EnvPrefix + "_" + key); v != "" {
		return v
	}
	return fallback
}

func (e envFunc) duration(key string, fallback time.Duration) time.Duration {
	if v := e(config.EnvPrefix + "_" + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func (e envFunc) bool(key string, fallback bool) bool {
	if v := e(config.EnvPrefix + "_" + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// parseFlags reads args with environment fallback. Empty log settings mean
// the values from the loaded configuration apply.
func parseFlags(args []string, getenv func(string) string, output io.Writer) (*CLIConfig, error) {
	env := envFunc(getenv)
	cfg := &CLIConfig{}

	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(output)

	var layers layerList
	fs.Var(&layers, "config",
		"Configuration file, repeat to layer (env: E2T_CONFIG, comma separated)")
	fs.StringVar(&cfg.LogLevel, "log-level", env.get("LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: E2T_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", env.get("LOG_FORMAT", ""),
		"Log format: json, text (env: E2T_LOG_FORMAT)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", env.duration("SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: E2T_SHUTDOWN_TIMEOUT)")
	fs.BoolVar(&cfg.Validate, "validate", env.bool("VALIDATE", false),
		"Validate configuration and exit")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")

	fs.Usage = func() {
		_, _ = fmt.Fprintf(output, "%s - telemetry ingest into TimescaleDB\n\nUsage: %s [options]\n\nOptions:\n", appName, appName)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.ConfigPaths = layers
	if len(cfg.ConfigPaths) == 0 {
		if v := env.get("CONFIG", ""); v != "" {
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					cfg.ConfigPaths = append(cfg.ConfigPaths, p)
				}
			}
		}
	}

	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}

	for _, path := range cfg.ConfigPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file not found: %s", path)
		}
	}

	if cfg.LogLevel != "" && !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(cfg.LogLevel)) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !slices.Contains([]string{"json", "text"}, strings.ToLower(cfg.LogFormat)) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive: %s", cfg.ShutdownTimeout)
	}

	return nil
}
