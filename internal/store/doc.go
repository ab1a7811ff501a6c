// Package store provides SQLite-backed storage for compliance runs and
// manual review decisions.
//
// The store holds:
//   - Runs: one row per invocation of `conform check --save`
//   - Reports: the reports of a run, stored as JSON in run order
//   - Decisions: manual verdicts for (rule, target glob) pairs
//
// # Ordering
//
// Runs are ordered by seq, an autoincrement column, never by timestamps.
// "latest" and listings therefore follow insertion order even when clocks
// disagree. Reports keep their position within a run.
//
// # Decisions
//
// A decision only ever resolves a needs_review finding (see
// DecisionReviewer). Findings the evaluator decided on its own are never
// overridden.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Reports are deleted with their run
package store
