package extractor

import (
	"github.com/mnbf9rca/eventhub-to-timescale/pkg/timestamp"
	"github.com/mnbf9rca/eventhub-to-timescale/router"
	"github.com/mnbf9rca/eventhub-to-timescale/timeseries"
)

var glowMeters = []string{"electricitymeter", "gasmeter"}

// glowIgnoreKeys are descriptive fields and rollups captured elsewhere.
var glowIgnoreKeys = []string{
	"units",
	"mpan",
	"mprn",
	"supplier",
	"dayweekmonthvolunits",
	"cumulativevolunits",
}

// Glow extracts smart meter readings published by a Glow bridge on
// glow/<device>/<meter>. The reading timestamp lives inside the meter object;
// the envelope timestamp is the bus receive time and is not used.
func Glow(in Input) ([]timeseries.Record, error) {
	if err := checkPublisher(router.PublisherGlow, in.Route.Publisher); err != nil {
		return nil, err
	}

	meter := in.Route.Last()
	if !interested(meter, glowMeters) {
		return nil, nil
	}

	payload, err := in.Envelope.Object()
	if err != nil {
		return nil, err
	}

	rawTime, err := lookupValue(payload, meter, "timestamp")
	if err != nil {
		return nil, err
	}
	ts, err := timestamp.Normalize(rawTime)
	if err != nil {
		return nil, err
	}

	meta := timeseries.Meta{
		Timestamp:     ts,
		Subject:       meter,
		Publisher:     router.PublisherGlow.String(),
		CorrelationID: in.CorrelationID,
	}

	imported, err := lookupMap(payload, meter, "energy", "import")
	if err != nil {
		return nil, err
	}
	records, err := timeseries.Flatten(imported, meta, timeseries.FlattenOptions{
		IgnoreKeys: glowIgnoreKeys,
		Prefix:     "import",
	})
	if err != nil {
		return nil, err
	}

	if meter != "electricitymeter" {
		return records, nil
	}

	power, err := lookupMap(payload, meter, "power")
	if err != nil {
		return nil, err
	}
	powerRecords, err := timeseries.Flatten(power, meta, timeseries.FlattenOptions{
		IgnoreKeys: glowIgnoreKeys,
		Prefix:     "power",
	})
	if err != nil {
		return nil, err
	}
	return append(records, powerRecords...), nil
}
