package extractor

import (
	"github.com/mnbf9rca/eventhub-to-timescale/pkg/timestamp"
	"github.com/mnbf9rca/eventhub-to-timescale/router"
	"github.com/mnbf9rca/eventhub-to-timescale/timeseries"
)

var emonDevices = []string{"emonTx4"}

// Emon extracts every reading of an energy monitor published on
// emon/<device>. The reading time is the payload's own "time" field.
func Emon(in Input) ([]timeseries.Record, error) {
	if err := checkPublisher(router.PublisherEmon, in.Route.Publisher); err != nil {
		return nil, err
	}

	device := in.Route.Last()
	if !interested(device, emonDevices) {
		return nil, nil
	}

	payload, err := in.Envelope.Object()
	if err != nil {
		return nil, err
	}
	rawTime, err := lookupValue(payload, "time")
	if err != nil {
		return nil, err
	}
	ts, err := timestamp.Normalize(rawTime)
	if err != nil {
		return nil, err
	}

	return timeseries.Flatten(payload, timeseries.Meta{
		Timestamp:     ts,
		Subject:       device,
		Publisher:     router.PublisherEmon.String(),
		CorrelationID: in.CorrelationID,
	}, timeseries.FlattenOptions{IgnoreKeys: []string{"time"}})
}
