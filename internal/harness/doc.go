// Package harness runs retrieval aggregation scenarios end to end.
//
// A scenario is a sequence of change stream batches fed through a real
// engine.Controller backed by an in-memory SQLite counter store, followed
// by assertions on the batch outcomes and the final counters.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	metric_table: retrieval-metrics   # optional
//	batches:
//	  - name: first
//	    events:
//	      - {id: e1, kind: INSERT, run: run-1, archive: a, to: requested, size: 1000}
//	      - {id: e2, kind: MODIFY, run: run-1, archive: b, from: staged, to: downloaded, size: 2048}
//	    deliveries: 2           # submit the same batch twice
//	    transient_failures: 1   # store failures before the first success
//	    expect:
//	      committed: true
//	      counted: 2
//	assertions:
//	  - type: counters
//	    run: run-1
//	    expect: {requested_count: 1, requested_size: 1000}
//	  - type: audit_contains
//	    line: "Archive:run-1|a - counted_status:requested"
//
// An event without size carries no size attribute, which makes an eligible
// record malformed.
//
// # Assertion Types
//
//   - counters: the stored counters of one workflow run (subset match)
//   - no_row: the workflow run has no stored row
//   - audit_contains: an audit line was emitted by some batch
//   - audit_count: the total number of audit lines emitted
//   - token_count: the number of distinct batches the store applied
//
// # Deterministic Testing
//
// Invocation ids are fixed ("inv-001", "inv-002", ...) and retries use a
// zero backoff, so traces are byte-identical across runs and can be
// compared against golden files (see RunWithGolden).
package harness
