// Package ir provides the canonical types shared by every retrievalstat package.
//
// This package contains type definitions, canonical serialization and the
// content hashes built on it. All other internal packages import ir; ir
// imports nothing internal.
//
// Key design constraints:
//   - Counters are int64 and only ever incremented
//   - Batch tokens depend only on the canonical bytes of the raw records
//   - Transactions are pure functions of a batch (no clocks, no randomness)
//   - All JSON tags use snake_case
package ir
