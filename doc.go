// Package eventhubtotimescale ingests home and vehicle telemetry and
// persists it into a TimescaleDB hypertable as one row per measurement.
//
// # Architecture
//
// The binary is a set of components connected by NATS subjects. Every
// component is created through the component registry from a layered
// configuration and started by the service package in dependency order:
// outputs first, then processors, then inputs.
//
//	┌──────────────┐          ┌──────────────────┐
//	│  MQTT input  │          │  Vehicle poller  │   glow/#, homie/#, emon/#
//	│ (paho)       │          │  (HTTP, x/time)  │   REST latest state
//	└──────┬───────┘          └────────┬─────────┘
//	       │ telemetry.raw.<publisher> │ vehicle.state
//	       ↓                           ↓
//	┌──────────────┐          ┌──────────────────┐
//	│  Normalizer  │          │ Vehicle processor│   dedup gate on
//	│ router +     │          │ extractor +      │   (vin, lastUpdatedAt)
//	│ extractors   │          │ dedup            │   kv | redis | sql
//	└──────┬───────┘          └────────┬─────────┘
//	       │     telemetry.records     │
//	       └─────────────┬─────────────┘
//	                     ├──────────────────────────┐
//	                     ↓                          ↓ telemetry.monitor
//	           ┌──────────────────┐        ┌──────────────────┐
//	           │ Timescale output │        │   File output    │
//	           │ (pgx pool)       │        │ daily JSONL      │
//	           └──────────────────┘        └──────────────────┘
//
// # Records
//
// Every measurement becomes an atomic record (package timeseries):
//
//	{"timestamp": "2023-06-01T10:00:00.000000Z", "measurement_subject": "hall",
//	 "measurement_publisher": "homie", "measurement_of": "temperature",
//	 "measurement_value": 21.5, "measurement_data_type": "number",
//	 "correlation_id": "..."}
//
// The data type selects the single value column the writer fills; the
// other value columns stay NULL. An insert that does not affect exactly one
// row is fatal and never retried.
//
// # Error handling
//
// Errors are classified by package errors as transient, invalid, or fatal.
// Invalid messages are logged and skipped without stopping their batch;
// transient failures leave dedup markers unset so the next delivery can
// succeed; fatal errors surface to the operator.
//
// # Packages
//
//   - router: topic to publisher resolution
//   - extractor: publisher specific payload extraction
//   - timeseries: records, value inference and coercion
//   - timescale: batch decoding, schema checks and the row writer
//   - dedup: version markers on NATS KV, Redis, or Postgres
//   - input/mqtt, input/vehicle: sources
//   - processor/normalizer, processor/vehicle: record producers
//   - output/timescale, output/file: sinks
//   - natsclient, metric, health, config, service: runtime
//
// The entry point is cmd/eventhub-to-timescale.
package eventhubtotimescale
