package extractor

import (
	"fmt"

	"github.com/mnbf9rca/eventhub-to-timescale/pkg/timestamp"
	"github.com/mnbf9rca/eventhub-to-timescale/router"
	"github.com/mnbf9rca/eventhub-to-timescale/timeseries"
)

var homieQuantities = []string{
	"measure-temperature",
	"heating-setpoint",
	"state",
	"mode",
	"thermostat-setpoint",
}

// HomieDataType returns the fixed data type of a homie quantity.
func HomieDataType(quantity string) timeseries.DataType {
	switch quantity {
	case "state", "mode":
		return timeseries.TypeString
	default:
		return timeseries.TypeNumber
	}
}

// Homie extracts a single reading from homie/.../<device>/<quantity>. The
// payload is a scalar and its type is decided by the quantity name, not by
// inspecting the value.
func Homie(in Input) ([]timeseries.Record, error) {
	if err := checkPublisher(router.PublisherHomie, in.Route.Publisher); err != nil {
		return nil, err
	}
	if !in.Envelope.HasTimestamp() {
		return nil, fmt.Errorf("%w: timestamp", ErrMissingKey)
	}

	quantity := in.Route.Last()
	if !interested(quantity, homieQuantities) {
		return nil, nil
	}

	ts, err := timestamp.Normalize(in.Envelope.Timestamp)
	if err != nil {
		return nil, err
	}

	raw, err := in.Envelope.Scalar()
	if err != nil {
		return nil, err
	}
	inferred, err := timeseries.Infer(raw)
	if err != nil {
		return nil, err
	}
	value, err := timeseries.Coerce(HomieDataType(quantity), inferred)
	if err != nil {
		return nil, err
	}

	meta := timeseries.Meta{
		Timestamp:     ts,
		Subject:       in.Route.SecondToLast(),
		Publisher:     router.PublisherHomie.String(),
		CorrelationID: in.CorrelationID,
	}
	return []timeseries.Record{timeseries.NewRecord(meta, quantity, value)}, nil
}
