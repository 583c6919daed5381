// Package retry provides exponential backoff for idempotent operations.
//
// It wraps the Postgres connect, dedup marker reads and writes, and vehicle
// API requests. It is never used around the Timescale insert: a retried
// insert that actually succeeded the first time would persist a duplicate
// row.
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return pool.Ping(ctx)
//	})
//
// Errors wrapped with NonRetryable stop the loop immediately. A Retryable
// predicate narrows retries further, for example to transient errors only:
//
//	cfg := retry.DefaultConfig()
//	cfg.Retryable = errors.IsTransient
package retry
