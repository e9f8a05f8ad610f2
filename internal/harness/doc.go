// Package harness provides scenario-driven conformance tests for the
// orchestrator.
//
// A scenario scripts a registry of units with fixed step outcomes, a
// simulated firmware (stale commits, faults, map growth) and the expected
// result. The harness runs it through the real runner, scheduler and
// transition coordinator, and checks the outcome.
//
// # Scenario Format
//
//	name: transition_succeeds
//	description: "B straddles the transition and its execute fails"
//	transition:
//	  max_attempts: 3
//	firmware:
//	  stale_commits: 1
//	units:
//	  - name: A
//	    phase: run_before_transition
//	  - name: B
//	    phase: setup_before_transition
//	    execute: failure
//	expect:
//	  failures: 1
//	  transition: committed
//	assertions:
//	  - type: step_outcome
//	    unit: B
//	    step: execute
//	    outcome: failure
//	  - type: step_order
//	    order: ["B:setup", "transition:committed", "B:execute"]
//
// Documents are decoded strictly and validated against the embedded CUE
// schema (scenario.cue) before the Go-side checks.
//
// # Assertion Types
//
//   - step_outcome: a unit's step ran and reported the outcome
//   - step_absent: a unit's step (or any of its steps) never ran
//   - step_order: trace entries appear in order ("unit:step", "transition:state")
//   - step_count: the journal holds exactly N step calls for a unit
//   - transition_attempts: the journal records N handshake attempts
//
// # Deterministic Testing
//
// Every run uses a fresh simulator, a fixed run id, a deterministic clock
// and an in-memory SQLite journal, so traces are byte-identical across
// runs and can be compared against golden files with goldie.
package harness
