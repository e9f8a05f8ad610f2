// Package store provides the SQLite run journal for selftest.
//
// The journal is append-only per run:
//   - runs: one row per driver invocation, finished with the summary
//   - step_events: every performed unit step and its outcome
//   - transition_events: every transition coordinator state change
//
// Events of one run share a single seq space, so steps and transition
// changes interleave in the order they happened. Reads always order by seq.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: events must belong to a known run
package store
