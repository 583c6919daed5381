package component

import (
	"context"
	"log/slog"

	"github.com/mnbf9rca/eventhub-to-timescale/metric"
	"github.com/mnbf9rca/eventhub-to-timescale/natsclient"
)

// Dependencies provides the shared infrastructure handed to every factory.
type Dependencies struct {
	NATSClient      *natsclient.Client      // required
	MetricsRegistry *metric.MetricsRegistry // can be nil
	Logger          *slog.Logger            // can be nil, defaults to slog.Default()
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}

// Bus is the part of natsclient.Client components use to move data.
type Bus interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) (natsclient.Subscription, error)
	Publish(ctx context.Context, subject string, data []byte) error
}

// Bus returns the NATS client as a Bus, or nil when none is configured.
func (d *Dependencies) Bus() Bus {
	if d.NATSClient == nil {
		return nil
	}
	return d.NATSClient
}

// CoreMetrics returns the shared pipeline metrics, or nil without a registry.
// The Record helpers on a nil *metric.Metrics are no-ops.
func (d *Dependencies) CoreMetrics() *metric.Metrics {
	if d.MetricsRegistry == nil {
		return nil
	}
	return d.MetricsRegistry.CoreMetrics()
}
