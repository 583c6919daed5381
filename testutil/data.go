package testutil

import (
	"encoding/json"
)

// GlowElectricityPayload is the inner payload of a glow electricity meter
// message. Its envelope timestamp would be the bus receive time.
const GlowElectricityPayload = `{
	"electricitymeter": {
		"timestamp": "2022-01-01T12:34:56Z",
		"energy": {"import": {"value": 100, "units": "kWh", "mpan": "123"}},
		"power": {"value": 200, "units": "kW"}
	}
}`

// EmonPayload is the inner payload of an emonTx reading.
const EmonPayload = `{"time": 1700000000, "power1": 120.5, "vrms": 242.1}`

// VehicleState is a raw connected-car snapshot with all six quantities.
const VehicleState = `{
	"vin": "WBA00000000000001",
	"state": {
		"lastUpdatedAt": "2023-06-01T10:00:00Z",
		"electricChargingState": {
			"chargingLevelPercent": 80,
			"range": 250,
			"isChargerConnected": true,
			"chargingStatus": "CHARGING"
		},
		"currentMileage": 12345,
		"location": {"coordinates": {"latitude": 51.5, "longitude": -0.12}}
	}
}`

// Envelope renders one bridge envelope with payload JSON-string encoded.
func Envelope(topic string, timestamp any, payload string) []byte {
	encoded, _ := json.Marshal(payload)
	env := map[string]any{
		"topic":     topic,
		"timestamp": timestamp,
		"payload":   json.RawMessage(encoded),
	}
	data, _ := json.Marshal(env)
	return data
}

// ScalarEnvelope renders an envelope whose payload is a bare JSON value.
func ScalarEnvelope(topic string, timestamp any, raw string) []byte {
	env := map[string]any{
		"topic":     topic,
		"timestamp": timestamp,
		"payload":   json.RawMessage(raw),
	}
	data, _ := json.Marshal(env)
	return data
}

// Batch joins envelopes into a JSON array.
func Batch(envelopes ...[]byte) []byte {
	items := make([]json.RawMessage, len(envelopes))
	for i, e := range envelopes {
		items[i] = e
	}
	data, _ := json.Marshal(items)
	return data
}
