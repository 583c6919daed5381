// Package testutil holds in-memory doubles and payload fixtures shared by
// component tests.
//
// MockNATSClient satisfies component.Bus: published messages are recorded
// and delivered synchronously to subscribers whose pattern matches, with
// NATS "*" and ">" wildcards. Fixtures are raw publisher payloads in the
// shape the MQTT bridges and the vehicle poller produce.
package testutil
