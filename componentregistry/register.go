// Package componentregistry registers every pipeline component factory.
package componentregistry

import (
	"errors"

	"github.com/mnbf9rca/eventhub-to-timescale/component"
	pkgerrors "github.com/mnbf9rca/eventhub-to-timescale/errors"
	"github.com/mnbf9rca/eventhub-to-timescale/input/mqtt"
	vehicleinput "github.com/mnbf9rca/eventhub-to-timescale/input/vehicle"
	"github.com/mnbf9rca/eventhub-to-timescale/output/file"
	"github.com/mnbf9rca/eventhub-to-timescale/output/timescale"
	"github.com/mnbf9rca/eventhub-to-timescale/processor/normalizer"
	"github.com/mnbf9rca/eventhub-to-timescale/processor/vehicle"
)

// Register registers the pipeline components with registry:
//
// Inputs:
//   - mqtt: MQTT publishers bridged onto NATS
//   - vehicle-poller: connected-car state on a timer
//
// Processors:
//   - normalizer: topic-driven publishers to atomic records
//   - vehicle: vehicle state to atomic records, once per version
//
// Outputs:
//   - timescale: one row per record
//   - file: monitor copy as daily JSON Lines
func Register(registry *component.Registry) error {
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	registrations := []struct {
		name     string
		register func(*component.Registry) error
	}{
		{"MQTT input", mqtt.Register},
		{"vehicle poller input", vehicleinput.Register},
		{"normalizer processor", normalizer.Register},
		{"vehicle processor", vehicle.Register},
		{"timescale output", timescale.Register},
		{"file output", file.Register},
	}
	for _, r := range registrations {
		if err := r.register(registry); err != nil {
			return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", r.name+" component registration")
		}
	}
	return nil
}
