// Package main runs the telemetry ingest pipeline: MQTT and vehicle API
// inputs, normalization and dedup processors, and TimescaleDB persistence.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/mnbf9rca/eventhub-to-timescale/component"
	"github.com/mnbf9rca/eventhub-to-timescale/componentregistry"
	"github.com/mnbf9rca/eventhub-to-timescale/config"
	"github.com/mnbf9rca/eventhub-to-timescale/metric"
	"github.com/mnbf9rca/eventhub-to-timescale/natsclient"
	"github.com/mnbf9rca/eventhub-to-timescale/service"
)

// Build information
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "eventhub-to-timescale"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, getenv func(string) string, stdout io.Writer) error {
	cli, err := parseFlags(args, getenv, os.Stderr)
	if err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cli.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s (build %s)\n", appName, Version, BuildTime)
		return nil
	}

	cfg, err := loadConfig(cli.ConfigPaths)
	if err != nil {
		return err
	}

	logger := setupLogger(stdout,
		firstNonEmpty(cli.LogLevel, cfg.Platform.LogLevel),
		firstNonEmpty(cli.LogFormat, cfg.Platform.LogFormat))
	slog.SetDefault(logger)

	logger.Info("Starting telemetry ingest",
		"build_time", BuildTime,
		"platform", cfg.Platform.ID,
		"config_layers", cli.ConfigPaths,
		"components", cfg.EnabledComponents())

	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return fmt.Errorf("register components: %w", err)
	}

	if cli.Validate {
		if err := validateComponents(cfg, registry); err != nil {
			return err
		}
		logger.Info("Configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := metric.NewMetricsRegistry()

	nc, err := connectNATS(ctx, cfg.NATS, logger, metrics)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
		defer cancel()
		if err := nc.Close(closeCtx); err != nil {
			logger.Warn("Closing NATS connection", "error", err)
		}
	}()

	manager := service.NewComponentManager(registry, component.Dependencies{
		NATSClient:      nc,
		MetricsRegistry: metrics,
		Logger:          logger,
	})
	manager.AddCheck("nats", func() error {
		if !nc.IsHealthy() {
			return fmt.Errorf("nats %s", nc.Status())
		}
		return nil
	})
	if err := manager.Build(cfg); err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	if cfg.Metrics.Enabled {
		srv := metric.NewServer(cfg.Metrics.Address, cfg.Metrics.Path, metrics, manager.Check)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() { _ = srv.Stop() }()
		logger.Info("Metrics server listening", "address", srv.Address(), "path", cfg.Metrics.Path)
	}

	if err := manager.Start(ctx, cli.ShutdownTimeout); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	logger.Info("Pipeline started", "components", manager.Components())

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	if err := manager.Stop(cli.ShutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Shutdown complete")
	return nil
}

func loadConfig(paths []string) (*config.Config, error) {
	loader := config.NewLoader()
	for _, p := range paths {
		loader.AddLayer(p)
	}
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// validateComponents checks that every enabled component names a known
// factory of the matching type.
func validateComponents(cfg *config.Config, registry *component.Registry) error {
	available := registry.ListAvailable()
	for _, name := range cfg.EnabledComponents() {
		cc := cfg.Components[name]
		info, ok := available[cc.Name]
		if !ok {
			return fmt.Errorf("component %s: unknown factory %q", name, cc.Name)
		}
		if info.Type != string(cc.Type) {
			return fmt.Errorf("component %s: factory %q is a %s, configured as %s", name, cc.Name, info.Type, cc.Type)
		}
	}
	return nil
}

func connectNATS(ctx context.Context, cfg config.NATSConfig, logger *slog.Logger, metrics *metric.MetricsRegistry) (*natsclient.Client, error) {
	core := metrics.CoreMetrics()

	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithLogger(natsclient.NewSlogLogger(logger.With("component", "natsclient"))),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			core.RecordNATSStatus(healthy)
			if healthy {
				logger.Info("NATS connection healthy")
			} else {
				logger.Warn("NATS connection unhealthy")
			}
		}),
	}
	if d := cfg.ReconnectWait.Std(); d > 0 {
		opts = append(opts, natsclient.WithReconnectWait(d))
	}
	switch {
	case cfg.Token != "":
		opts = append(opts, natsclient.WithToken(cfg.Token))
	case cfg.Username != "":
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}

	nc, err := natsclient.NewClient(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	logger.Info("Connecting to NATS", "urls", cfg.URLs)
	if err := nc.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := nc.WaitForConnection(waitCtx); err != nil {
		_ = nc.Close(context.Background())
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}
	core.RecordNATSStatus(true)

	return nc, nil
}
