// Package metric owns the Prometheus registry for the ingest pipeline.
//
// NewMetricsRegistry builds a private registry that already holds the Go
// runtime and process collectors plus the pipeline-wide Metrics (messages
// received, records emitted and persisted, errors by class, NATS state).
// Components register their own collectors under a service name:
//
//	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
//		Namespace: "e2t", Subsystem: "timescale", Name: "rows_total",
//	}, []string{"column"})
//	if err := registry.RegisterCounterVec("timescale-writer", "rows", writes); err != nil {
//		return err
//	}
//
// Registering the same service/metric pair twice returns an Invalid error
// instead of panicking.
//
// Server exposes the registry over HTTP at a configurable path (OpenMetrics
// enabled) together with a /health endpoint driven by a caller-supplied
// check.
package metric
