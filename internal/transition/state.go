package transition

import "fmt"

// State is a coordinator handshake state.
type State int

const (
	StateIdle State = iota
	StateSizingQueried
	StateSnapshotCaptured
	StateTransitionRequested
	StateStaleKeyRetry
	StateCommitted
	StateFatal
)

var stateNames = [...]string{
	StateIdle:                "idle",
	StateSizingQueried:       "sizing_queried",
	StateSnapshotCaptured:    "snapshot_captured",
	StateTransitionRequested: "transition_requested",
	StateStaleKeyRetry:       "stale_key_retry",
	StateCommitted:           "committed",
	StateFatal:               "fatal",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState maps a state name back to its value.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return StateIdle, fmt.Errorf("unknown transition state %q", name)
}

// IsTerminal reports whether no further transition is possible from s.
func IsTerminal(s State) bool {
	return s == StateCommitted || s == StateFatal
}

// isAllowedTransition encodes the handshake graph. Every non-terminal state
// may also fail.
func isAllowedTransition(from, to State) bool {
	if to == StateFatal {
		return !IsTerminal(from)
	}
	switch from {
	case StateIdle:
		return to == StateSizingQueried
	case StateSizingQueried:
		// Resizing re-queries with a larger buffer.
		return to == StateSnapshotCaptured || to == StateSizingQueried
	case StateSnapshotCaptured:
		return to == StateTransitionRequested
	case StateTransitionRequested:
		return to == StateCommitted || to == StateStaleKeyRetry
	case StateStaleKeyRetry:
		return to == StateSizingQueried
	default:
		return false
	}
}

// Mode is the environment-wide service mode the handshake moves between.
type Mode int

const (
	BootTimeActive Mode = iota
	RunTimeOnly
)

func (m Mode) String() string {
	if m == RunTimeOnly {
		return "run_time_only"
	}
	return "boot_time_active"
}
