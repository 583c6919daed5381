// Package timeseries defines the atomic record, the canonical unit of
// normalized telemetry, together with the rules that classify and coerce its
// value and the recursive flattener that produces records from nested
// payloads.
//
// An atomic record carries exactly one measurement. A single source event
// (one meter reading, one vehicle state snapshot) produces many records that
// all share its timestamp, subject, publisher and correlation id and differ
// only in measurement_of, measurement_value and measurement_data_type.
//
// Values are a tagged sum type:
//
//	timeseries.NumberValue(21.5)
//	timeseries.TextValue("charging")
//	timeseries.FlagValue(true)
//	timeseries.PointValue(51.5, -0.12)
//
// Infer builds a Value from a decoded JSON leaf; booleans are detected
// before numbers. Coerce converts a Value to the representation demanded by
// a DataType at persistence time, for example "TRUE" to a boolean or
// "40.7128,-74.0062" to a validated geographic point.
package timeseries
