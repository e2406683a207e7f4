// Package store provides the SQLite-backed RecordStore for gigledger.
//
// The store keeps one table per collection:
//   - Syncable tables (trips, shifts, expenses): rows carry the lifecycle
//     envelope (local_id, seq, state, version) alongside the payload JSON
//   - Aggregate tables (addresses, names, ...): rows keyed by normalized
//     natural key with a stable local_id
//   - Rollup tables (daily, weekdays, weekly, yearly): rows keyed by period
//
// # Invariants
//
// Every write is committed before the call returns. There is no buffering,
// so a crash between two calls never loses a mutation.
//
// Queries are typed (Get, BySeq, ByKey, ByDateRange, Pending) and backed by
// explicit indexes. Results are ordered by seq ASC, local_id ASC.
//
// ClearState is a compare-and-set on version: a pending row is only marked
// clean if nothing touched it since the caller read it.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - single connection: SQLite allows one writer
package store
