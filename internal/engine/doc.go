// Package engine implements the retrieval status aggregation engine.
//
// One Controller.Process call consumes one batch of change events and turns
// it into at most one atomic additive update of the metric store.
//
// Event Processing Flow:
// 1. The batch token is derived from the raw records (ir.BatchToken)
// 2. Every event is classified against the transition table
// 3. Counted transitions are folded into per-workflow-run deltas
// 4. The deltas become one ir.Transaction, submitted with the token
// 5. Audit lines are emitted only after the store accepted the transaction
//
// The engine takes no locks. Concurrent invocations are made safe by the
// store's atomic additive updates and by the per-batch request token: a
// retried or redelivered batch carries the same token and the same payload,
// so the store applies it at most once.
//
// CRITICAL PATTERNS:
//
// Pure fold: classification and accumulation never touch the store, so the
// deltas of a batch are independent of event order and of retries.
//
// Fixed payload: the transaction is built once per batch and reused verbatim
// on every retry attempt. Nothing time- or attempt-dependent may enter it.
package engine
