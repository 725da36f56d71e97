// Package store defines the durable key-value persistence contract used by
// the pipeline orchestrator and the monitoring subsystem, along with the
// partition/sort key scheme shared with the original data layout. Items are
// addressed by a (partition key, sort key) pair and carry an opaque JSON
// document; there are no transactions and no optimistic concurrency
// control, so read-modify-write cycles are last-writer-wins.
//
// MemStore is the in-memory implementation used by tests and local runs;
// the Postgres-backed implementation lives in internal/platform/postgres.
package store
