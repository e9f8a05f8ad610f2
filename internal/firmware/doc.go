// Package firmware models the capability surface a firmware environment
// offers to the self-test orchestrator.
//
// The environment has two lifetimes separated by one irreversible event:
//
//   - Boot time: memory allocation, memory map queries, protocol lookup
//     and the transition primitive itself are available (BootServices).
//   - Run time: only the reduced RuntimeServices set may be called.
//
// The transition is guarded by a map key. Every change to the memory map
// (an allocation, a free, an event handler running behind our back)
// produces a new key, and CommitTransition only succeeds when handed the
// key of the current map.
//
// Nothing in this package keeps global state. An Env is built once with
// NewEnv and passed explicitly to everything that needs services.
//
// Sim is an in-memory implementation of both service sets, used by the
// CLI and by tests. It supports fault injection for every step of the
// transition handshake.
package firmware
