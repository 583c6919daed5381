// Package errors provides the error taxonomy used across the ingest pipeline.
//
// # Classification
//
// Every error that leaves a pipeline stage falls into one of three classes:
//
//   - Transient: the backend could not be reached or timed out. The caller
//     owns the retry policy.
//   - Invalid: the message or one of its values is malformed (bad topic,
//     wrong publisher, out-of-range timestamp, unparsable coordinate). The
//     message is logged and skipped; the batch continues.
//   - Fatal: a persistence invariant was violated, for example an insert
//     that affected zero or two rows. Fatal errors are surfaced and never
//     retried, since replaying a non-idempotent insert could duplicate data.
//
// # Wrapping
//
// All wrapping follows one format:
//
//	component.method: action failed: <cause>
//
// For example:
//
//	return errors.WrapInvalid(err, "TimescaleWriter", "Persist", "coerce value")
//
// produces "TimescaleWriter.Persist: coerce value failed: invalid latitude value: 100"
// and remains matchable with errors.Is against the domain sentinel that caused it.
//
// Domain sentinels are declared by the packages that raise them (router,
// timestamp, timeseries, timescale). This package only carries the
// cross-cutting ones.
package errors
