// Package timescale persists atomic records into a TimescaleDB hypertable.
//
// The target table has one row per record:
//
//	timestamp, measurement_publisher, measurement_subject, correlation_id,
//	measurement_of,
//	measurement_number | measurement_string | measurement_bool | measurement_location
//
// Exactly one of the four typed columns is written per row; the others are
// left NULL. Writer.Persist inserts a single row and checks the affected row
// count. Zero or more than one affected row is a Fatal error and is never
// retried, since replaying a non-idempotent insert could duplicate data.
//
// Batches arriving on the bus are split with SplitBatch, optionally checked
// against the embedded record schema with SchemaValidator, decoded with
// DecodeRecord and persisted one at a time.
package timescale
