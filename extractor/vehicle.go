package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/mnbf9rca/eventhub-to-timescale/pkg/timestamp"
	"github.com/mnbf9rca/eventhub-to-timescale/router"
	"github.com/mnbf9rca/eventhub-to-timescale/timeseries"
)

// Gate records which (subject, version) pairs have already been processed.
type Gate interface {
	Seen(ctx context.Context, subject, version string) (bool, error)
	Mark(ctx context.Context, subject, version string) error
}

// VehicleUpdate is the outcome of extracting one vehicle state snapshot.
type VehicleUpdate struct {
	VIN       string
	Version   string
	Records   []timeseries.Record
	Duplicate bool
}

// Vehicle extracts connected-car state snapshots, suppressing versions the
// gate has already seen.
type Vehicle struct {
	gate Gate
}

// NewVehicle returns a vehicle extractor backed by gate.
func NewVehicle(gate Gate) *Vehicle {
	return &Vehicle{gate: gate}
}

// Extract returns the records for state, or an update with Duplicate set and
// no records when its version marker was already processed. The caller must
// call Commit after durably emitting the records.
func (v *Vehicle) Extract(ctx context.Context, state map[string]any) (VehicleUpdate, error) {
	vin, version, err := VehicleMarker(state)
	if err != nil {
		return VehicleUpdate{}, err
	}

	seen, err := v.gate.Seen(ctx, vin, version)
	if err != nil {
		return VehicleUpdate{}, err
	}
	if seen {
		return VehicleUpdate{VIN: vin, Version: version, Duplicate: true}, nil
	}

	return VehicleRecords(state)
}

// Commit marks the update's version as processed. Duplicates are a no-op.
func (v *Vehicle) Commit(ctx context.Context, u VehicleUpdate) error {
	if u.Duplicate {
		return nil
	}
	return v.gate.Mark(ctx, u.VIN, u.Version)
}

// VehicleMarker reads the vehicle id and its last-updated version marker.
func VehicleMarker(state map[string]any) (vin, version string, err error) {
	vin, ok := state["vin"].(string)
	if !ok || vin == "" {
		return "", "", fmt.Errorf("%w: vin", ErrMissingKey)
	}
	raw, err := lookupValue(state, "state", "lastUpdatedAt")
	if err != nil {
		return "", "", err
	}
	version, ok = raw.(string)
	if !ok || version == "" {
		return "", "", fmt.Errorf("%w: state.lastUpdatedAt must be a string", ErrMissingKey)
	}
	return vin, version, nil
}

type vehicleField struct {
	name    string
	path    []string
	convert func(any) (timeseries.Value, error)
}

var vehicleFields = []vehicleField{
	{"chargingLevelPercent", []string{"state", "electricChargingState", "chargingLevelPercent"}, asNumber},
	{"range", []string{"state", "electricChargingState", "range"}, asNumber},
	{"isChargerConnected", []string{"state", "electricChargingState", "isChargerConnected"}, asFlag},
	{"chargingStatus", []string{"state", "electricChargingState", "chargingStatus"}, asText},
	{"currentMileage", []string{"state", "currentMileage"}, asInteger},
}

// VehicleRecords builds one record per quantity present in state. Absent
// quantities are skipped. All records share the version marker as
// correlation id.
func VehicleRecords(state map[string]any) (VehicleUpdate, error) {
	vin, version, err := VehicleMarker(state)
	if err != nil {
		return VehicleUpdate{}, err
	}
	ts, err := timestamp.Normalize(version)
	if err != nil {
		return VehicleUpdate{}, err
	}

	meta := timeseries.Meta{
		Timestamp:     ts,
		Subject:       vin,
		Publisher:     router.PublisherVehicle.String(),
		CorrelationID: version,
	}

	var records []timeseries.Record
	for _, field := range vehicleFields {
		raw, err := lookupValue(state, field.path...)
		if err != nil {
			continue
		}
		value, err := field.convert(raw)
		if err != nil {
			return VehicleUpdate{}, fmt.Errorf("%s: %w", field.name, err)
		}
		records = append(records, timeseries.NewRecord(meta, field.name, value))
	}

	if coords, err := lookupMap(state, "state", "location", "coordinates"); err == nil {
		point, err := coordinates(coords)
		if err != nil {
			return VehicleUpdate{}, fmt.Errorf("coordinates: %w", err)
		}
		records = append(records, timeseries.NewRecord(meta, "coordinates", point))
	}

	return VehicleUpdate{VIN: vin, Version: version, Records: records}, nil
}

func asNumber(raw any) (timeseries.Value, error) {
	v, err := timeseries.Infer(raw)
	if err != nil {
		return timeseries.Value{}, err
	}
	return timeseries.Coerce(timeseries.TypeNumber, v)
}

func asText(raw any) (timeseries.Value, error) {
	v, err := timeseries.Infer(raw)
	if err != nil {
		return timeseries.Value{}, err
	}
	return timeseries.Coerce(timeseries.TypeString, v)
}

// asFlag treats numbers as truthy when non-zero.
func asFlag(raw any) (timeseries.Value, error) {
	v, err := timeseries.Infer(raw)
	if err != nil {
		return timeseries.Value{}, err
	}
	if n, ok := v.Number(); ok {
		return timeseries.FlagValue(n != 0), nil
	}
	return timeseries.Coerce(timeseries.TypeBoolean, v)
}

func asInteger(raw any) (timeseries.Value, error) {
	switch n := raw.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return timeseries.NumberValue(float64(i)), nil
		}
	case float64:
		if n == math.Trunc(n) {
			return timeseries.NumberValue(n), nil
		}
	case int:
		return timeseries.NumberValue(float64(n)), nil
	case int64:
		return timeseries.NumberValue(float64(n)), nil
	}
	return timeseries.Value{}, fmt.Errorf("%w: expected integer, got %v", timeseries.ErrInvalidNumberValue, raw)
}

func coordinates(coords map[string]any) (timeseries.Value, error) {
	lat, latOK := numeric(coords["latitude"])
	lon, lonOK := numeric(coords["longitude"])
	if !latOK || !lonOK {
		return timeseries.Value{}, fmt.Errorf("%w: latitude and longitude must be numbers", timeseries.ErrInvalidGeographyValue)
	}
	p, err := timeseries.ValidatePoint(lat, lon)
	if err != nil {
		return timeseries.Value{}, err
	}
	return timeseries.PointValue(p.Lat, p.Lon), nil
}

func numeric(raw any) (float64, bool) {
	switch n := raw.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
