// Package transition coordinates the one-way handoff from boot-time to
// run-time services.
//
// The handshake is a map-key protocol: the coordinator sizes the memory
// map, allocates a buffer for it, captures the map together with its key
// and commits the transition with that key. Any change to the map between
// capture and commit invalidates the key; the coordinator then starts over
// from the size query, up to Config.MaxAttempts attempts in total.
//
// States:
//
//	idle -> sizing_queried -> snapshot_captured -> transition_requested -> committed
//	                 ^  \_(resize)                         |
//	                 |                                     v
//	                 +------------------------------ stale_key_retry
//
// Every non-terminal state may also move to fatal. committed and fatal are
// terminal; a Coordinator runs at most once.
package transition
