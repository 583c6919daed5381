// Package natsclient manages the NATS connection shared by every pipeline
// component.
//
// The client wraps a single *nats.Conn plus its JetStream context and adds:
//
//   - connection status tracking with a small circuit breaker, so a flapping
//     server does not turn every publish into a blocking dial
//   - per-message contexts for subscription handlers (30 second budget)
//   - get-or-create semantics for JetStream key-value buckets, tolerant of
//     two processes racing to create the same bucket
//   - drain-on-close bounded by the caller's context
//
// # Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithName("eventhub-to-timescale"),
//		natsclient.WithLogger(natsclient.NewSlogLogger(logger)),
//	)
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(context.Background())
//
//	sub, err := client.Subscribe(ctx, "telemetry.raw.>", func(ctx context.Context, data []byte) {
//		// handle one envelope batch
//	})
//	...
//	sub.Unsubscribe()
//
// # Key-value
//
// KVStore is a thin wrapper over a jetstream.KeyValue bucket that maps the
// server's not-found and already-exists conditions onto ErrKVKeyNotFound and
// ErrKVKeyExists. The dedup package builds its version-marker store on it.
//
// # Testing
//
// NewTestClient starts a disposable nats-server container through
// testcontainers. Tests that use it carry the integration build tag.
package natsclient
