// Package store provides a SQLite-backed counter store.
//
// The store keeps two tables:
//   - metric_rows: six additive counters per (metric table, workflow run)
//   - request_tokens: request tokens of applied transactions with their payload hash
//
// # Critical Patterns
//
// Atomic batches
//   - ApplyIncrements runs the token check, every row upsert and the token
//     insert in one SQL transaction; any failure rolls all of it back
//
// Token idempotency
//   - A recorded token with the same payload hash is a no-op
//   - A recorded token with a different payload hash is ir.ErrTokenConflict
//
// Additive only
//   - Rows are written with INSERT ... ON CONFLICT DO UPDATE SET col = col + excluded.col
//   - CHECK constraints keep every counter non-negative
//
// Several metric tables share one database file; rows are namespaced by the
// table_name column.
//
// # Schema Version
//
// PRAGMA user_version records the schema version when the tables are created.
// Open refuses a database with a higher version (ErrSchemaTooNew) rather
// than incrementing counters in a layout it does not know.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
