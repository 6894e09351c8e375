// Package eventstore defines the storage contract behind the chat log and
// presence set, with three interchangeable backends:
//
//   - Memory: process-local, for tests and single-process demos.
//   - Pebble: durable embedded store, the default.
//   - NATS: a JetStream key-value bucket shared by several relay processes.
//
// Append allocates the event id inside the backend's atomic step (write lock,
// batch or compare-and-swap) and trims the log to the given limit in that
// same step. Ids therefore become visible in increasing order and a reader
// can never observe id n+1 before id n is committed.
package eventstore
