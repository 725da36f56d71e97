// Package postgres provides the PostgreSQL-backed implementation of the
// store.KV contract, plus connection setup and schema migrations. All
// entities live in a single kv_items table keyed by (pk, sk), mirroring the
// partition/sort key layout the rest of the codebase is written against.
package postgres
