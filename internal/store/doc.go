// Package store provides SQLite-backed durable storage for simulation runs.
//
// The store mirrors the event log of each run:
//   - Runs: one row per simulation, keyed by a UUIDv7 run ID, with the
//     script digest, board configuration and final summary
//   - Events: the run's log entries in emission order
//
// Rows are append-only. A run row is updated exactly once, when the run
// finishes.
//
// # Ordering
//
// Events are ordered by seq, the zero-based index of the entry in the run's
// log. Queries always include ORDER BY seq ASC so traces read back in the
// order they were written. Runs list in run ID order, which for UUIDv7 IDs
// is creation order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait up to 5s for locks
//   - foreign_keys=ON: Enforce referential integrity
package store
